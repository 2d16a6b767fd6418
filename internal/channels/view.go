package channels

import "github.com/Guliveer/twitch-drops-go/internal/model"

// ChannelView is the serializable channel snapshot pushed to the control
// surface.
type ChannelView struct {
	ID            string `json:"id"`
	Login         string `json:"login"`
	DisplayName   string `json:"display_name"`
	URL           string `json:"url"`
	Online        bool   `json:"online"`
	PendingOnline bool   `json:"pending_online"`
	Viewers       int    `json:"viewers"`
	Game          string `json:"game,omitempty"`
	GameID        string `json:"game_id,omitempty"`
	Title         string `json:"title,omitempty"`
	DropsEnabled  bool   `json:"drops_enabled"`
	ACLBased      bool   `json:"acl_based"`
}

// View snapshots a channel under its lock.
func View(ch *model.Channel) ChannelView {
	v := ChannelView{
		ID:            ch.ID,
		Login:         ch.Login,
		DisplayName:   ch.DisplayName,
		URL:           ch.URL(),
		Online:        ch.Online(),
		PendingOnline: ch.PendingOnline(),
		ACLBased:      ch.ACLBased,
	}
	ch.Mu.RLock()
	if ch.Stream != nil {
		v.Viewers = ch.Stream.ViewerCount
		v.Title = ch.Stream.Title
		v.DropsEnabled = ch.Stream.DropsEnabled
		if ch.Stream.Game != nil {
			v.Game = ch.Stream.Game.DisplayName
			v.GameID = ch.Stream.Game.ID
		}
	}
	ch.Mu.RUnlock()
	return v
}
