package model

import (
	"fmt"

	"github.com/Guliveer/twitch-drops-go/internal/utils"
)

// Game holds game/category metadata from the Twitch API.
type Game struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Slug        string `json:"slug,omitempty"`
	BoxArtURL   string `json:"box_art_url,omitempty"`
}

// ResolveSlug returns the best available directory slug for this game.
// The API-provided slug wins; otherwise one is derived from the display name.
func (g *Game) ResolveSlug() string {
	if g.Slug != "" {
		return g.Slug
	}
	if g.DisplayName != "" {
		return utils.Slugify(g.DisplayName)
	}
	return utils.Slugify(g.Name)
}

// Equal returns true if two games refer to the same category.
func (g *Game) Equal(other *Game) bool {
	if g == nil || other == nil {
		return g == other
	}
	return g.ID == other.ID
}

// String returns a human-readable representation of the game.
func (g *Game) String() string {
	name := g.DisplayName
	if name == "" {
		name = g.Name
	}
	return fmt.Sprintf("Game(id=%s, name=%s)", g.ID, name)
}
