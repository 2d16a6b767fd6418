package gql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// StreamInfoResponse holds parsed stream info from the GQL API.
type StreamInfoResponse struct {
	BroadcastID  string
	Title        string
	Game         *model.Game
	ViewersCount int
	DropsEnabled bool
}

// CurrentDropResponse is the drop currently progressing on a channel.
type CurrentDropResponse struct {
	DropID          string
	CurrentMinutes  int
	RequiredMinutes int
}

// DirectoryStream is one live channel from a game directory page.
type DirectoryStream struct {
	ChannelID    string
	Login        string
	DisplayName  string
	ViewersCount int
	GameID       string
}

// PlaybackAccessToken holds the signature and token needed for HLS manifest
// access.
type PlaybackAccessToken struct {
	Signature string `json:"signature"`
	Value     string `json:"value"`
}

// GetStreamInfo fetches stream information for a channel.
// Returns nil if the channel is offline.
func (c *Client) GetStreamInfo(ctx context.Context, channelLogin string) (*StreamInfoResponse, error) {
	vars := map[string]any{"channel": channelLogin}
	data, err := c.PostGQL(ctx, constants.GQLGetStreamInfo, vars)
	if err != nil {
		return nil, fmt.Errorf("GetStreamInfo for %s: %w", channelLogin, err)
	}

	var resp struct {
		User *struct {
			Stream *struct {
				ID           string `json:"id"`
				ViewersCount int    `json:"viewersCount"`
				Tags         []struct {
					ID string `json:"id"`
				} `json:"tags"`
			} `json:"stream"`
			BroadcastSettings struct {
				Title string    `json:"title"`
				Game  *gameResp `json:"game"`
			} `json:"broadcastSettings"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing GetStreamInfo response: %w", err)
	}

	if resp.User == nil || resp.User.Stream == nil {
		return nil, nil
	}

	result := &StreamInfoResponse{
		BroadcastID:  resp.User.Stream.ID,
		Title:        resp.User.BroadcastSettings.Title,
		ViewersCount: resp.User.Stream.ViewersCount,
	}
	if g := resp.User.BroadcastSettings.Game; g != nil {
		result.Game = g.toModel()
	}
	for _, tag := range resp.User.Stream.Tags {
		if tag.ID == constants.DropsTagID {
			result.DropsEnabled = true
			break
		}
	}
	return result, nil
}

type gameResp struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Slug        string `json:"slug"`
}

func (g *gameResp) toModel() *model.Game {
	return &model.Game{
		ID:          g.ID,
		Name:        g.Name,
		DisplayName: g.DisplayName,
		Slug:        g.Slug,
	}
}

// GetInventory fetches the user's drop inventory as raw JSON; the inventory
// service owns the parse.
func (c *Client) GetInventory(ctx context.Context) (json.RawMessage, error) {
	vars := map[string]any{"fetchRewardCampaigns": false}
	data, err := c.PostGQL(ctx, constants.GQLInventory, vars)
	if err != nil {
		return nil, fmt.Errorf("GetInventory: %w", err)
	}

	var resp struct {
		CurrentUser *struct {
			Inventory json.RawMessage `json:"inventory"`
		} `json:"currentUser"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing GetInventory response: %w", err)
	}
	if resp.CurrentUser == nil {
		return nil, nil
	}
	return resp.CurrentUser.Inventory, nil
}

// GetCampaigns fetches the campaign dashboard list. Entries are raw campaign
// objects with at least id and status.
func (c *Client) GetCampaigns(ctx context.Context) ([]json.RawMessage, error) {
	vars := map[string]any{"fetchRewardCampaigns": false}
	data, err := c.PostGQL(ctx, constants.GQLCampaigns, vars)
	if err != nil {
		return nil, fmt.Errorf("GetCampaigns: %w", err)
	}

	var resp struct {
		CurrentUser *struct {
			DropCampaigns []json.RawMessage `json:"dropCampaigns"`
		} `json:"currentUser"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing GetCampaigns response: %w", err)
	}
	if resp.CurrentUser == nil {
		return nil, nil
	}
	return resp.CurrentUser.DropCampaigns, nil
}

// GetCampaignDetails fetches extended details for the given campaign IDs,
// batching CampaignDetailsChunk queries per round.
func (c *Client) GetCampaignDetails(ctx context.Context, campaignIDs []string, userLogin string) ([]json.RawMessage, error) {
	var results []json.RawMessage

	for start := 0; start < len(campaignIDs); start += constants.CampaignDetailsChunk {
		end := start + constants.CampaignDetailsChunk
		if end > len(campaignIDs) {
			end = len(campaignIDs)
		}
		chunk := campaignIDs[start:end]

		ops := make([]constants.GQLOperation, len(chunk))
		varsList := make([]map[string]any, len(chunk))
		for i, id := range chunk {
			ops[i] = constants.GQLCampaignDetails
			varsList[i] = map[string]any{
				"dropID":       id,
				"channelLogin": userLogin,
			}
		}

		batch, err := c.PostGQLBatch(ctx, ops, varsList)
		if err != nil {
			return nil, fmt.Errorf("GetCampaignDetails: %w", err)
		}
		for _, data := range batch {
			if data == nil {
				continue
			}
			var resp struct {
				User *struct {
					DropCampaign json.RawMessage `json:"dropCampaign"`
				} `json:"user"`
			}
			if err := json.Unmarshal(data, &resp); err == nil && resp.User != nil {
				results = append(results, resp.User.DropCampaign)
			}
		}
	}
	return results, nil
}

// GetCurrentDrop returns the drop currently progressing while watching the
// given channel. Returns nil when no drop session is active.
func (c *Client) GetCurrentDrop(ctx context.Context, channelID string) (*CurrentDropResponse, error) {
	vars := map[string]any{
		"channelID":    channelID,
		"channelLogin": "",
	}
	data, err := c.PostGQL(ctx, constants.GQLCurrentDrop, vars)
	if err != nil {
		return nil, fmt.Errorf("GetCurrentDrop for %s: %w", channelID, err)
	}

	var resp struct {
		CurrentUser *struct {
			DropCurrentSession *struct {
				DropID          string `json:"dropID"`
				CurrentMinutes  int    `json:"currentMinutesWatched"`
				RequiredMinutes int    `json:"requiredMinutesWatched"`
			} `json:"dropCurrentSession"`
		} `json:"currentUser"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing GetCurrentDrop response: %w", err)
	}
	if resp.CurrentUser == nil || resp.CurrentUser.DropCurrentSession == nil {
		return nil, nil
	}
	s := resp.CurrentUser.DropCurrentSession
	return &CurrentDropResponse{
		DropID:          s.DropID,
		CurrentMinutes:  s.CurrentMinutes,
		RequiredMinutes: s.RequiredMinutes,
	}, nil
}

// ClaimDrop claims a drop reward by its instance ID. Returns true when the
// drop ends up claimed, including the already-claimed case.
func (c *Client) ClaimDrop(ctx context.Context, dropInstanceID string) (bool, error) {
	vars := map[string]any{
		"input": map[string]any{
			"dropInstanceID": dropInstanceID,
		},
	}
	data, err := c.PostGQL(ctx, constants.GQLClaimDrop, vars)
	if err != nil {
		return false, fmt.Errorf("ClaimDrop: %w", err)
	}

	var resp struct {
		ClaimDropRewards *struct {
			Status string `json:"status"`
		} `json:"claimDropRewards"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("parsing ClaimDrop response: %w", err)
	}
	if resp.ClaimDropRewards == nil {
		return false, nil
	}
	switch resp.ClaimDropRewards.Status {
	case "ELIGIBLE_FOR_ALL", "DROP_INSTANCE_ALREADY_CLAIMED":
		return true, nil
	default:
		return false, nil
	}
}

// GetAvailableDrops returns the campaign IDs with drops available on a
// channel right now.
func (c *Client) GetAvailableDrops(ctx context.Context, channelID string) ([]string, error) {
	vars := map[string]any{"channelID": channelID}
	data, err := c.PostGQL(ctx, constants.GQLAvailableDrops, vars)
	if err != nil {
		return nil, fmt.Errorf("GetAvailableDrops: %w", err)
	}

	var resp struct {
		Channel *struct {
			ViewerDropCampaigns []struct {
				ID string `json:"id"`
			} `json:"viewerDropCampaigns"`
		} `json:"channel"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing GetAvailableDrops response: %w", err)
	}
	if resp.Channel == nil {
		return nil, nil
	}
	ids := make([]string, 0, len(resp.Channel.ViewerDropCampaigns))
	for _, campaign := range resp.Channel.ViewerDropCampaigns {
		ids = append(ids, campaign.ID)
	}
	return ids, nil
}

// GetPlaybackAccessToken fetches the playback access token for a live stream.
func (c *Client) GetPlaybackAccessToken(ctx context.Context, login string) (*PlaybackAccessToken, error) {
	vars := map[string]any{
		"isLive":     true,
		"isVod":      false,
		"login":      login,
		"platform":   "web",
		"playerType": "site",
		"vodID":      "",
	}
	data, err := c.PostGQL(ctx, constants.GQLPlaybackAccessToken, vars)
	if err != nil {
		return nil, fmt.Errorf("GetPlaybackAccessToken for %s: %w", login, err)
	}

	var resp struct {
		StreamPlaybackAccessToken *PlaybackAccessToken `json:"streamPlaybackAccessToken"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing GetPlaybackAccessToken response: %w", err)
	}
	if resp.StreamPlaybackAccessToken == nil {
		return nil, fmt.Errorf("no playback access token for %s (stream may be offline)", login)
	}
	return resp.StreamPlaybackAccessToken, nil
}

// GetGameDirectory fetches live channels for a game slug, drops-enabled
// streams first when dropsOnly is set.
func (c *Client) GetGameDirectory(ctx context.Context, slug string, limit int, dropsOnly bool) ([]DirectoryStream, error) {
	options := map[string]any{
		"broadcasterLanguages":   []string{},
		"includeRestricted":      []string{"SUB_ONLY_LIVE"},
		"recommendationsContext": map[string]any{"platform": "web"},
		"sort":                   "VIEWER_COUNT",
		"systemFilters":          []string{},
		"tags":                   []string{},
		"requestID":              "JIRA-VXP-2397",
	}
	if dropsOnly {
		options["systemFilters"] = []string{"DROPS_ENABLED"}
	}
	vars := map[string]any{
		"limit":              limit,
		"slug":               slug,
		"imageWidth":         50,
		"includeCostreaming": false,
		"options":            options,
		"sortTypeIsRecency":  false,
	}

	data, err := c.PostGQL(ctx, constants.GQLGameDirectory, vars)
	if err != nil {
		return nil, fmt.Errorf("GetGameDirectory for %s: %w", slug, err)
	}

	var resp struct {
		Game *struct {
			Streams struct {
				Edges []struct {
					Node struct {
						Broadcaster *struct {
							ID          string `json:"id"`
							Login       string `json:"login"`
							DisplayName string `json:"displayName"`
						} `json:"broadcaster"`
						ViewersCount int       `json:"viewersCount"`
						Game         *gameResp `json:"game"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"streams"`
		} `json:"game"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing GetGameDirectory response: %w", err)
	}
	if resp.Game == nil {
		return nil, nil
	}

	streams := make([]DirectoryStream, 0, len(resp.Game.Streams.Edges))
	for _, edge := range resp.Game.Streams.Edges {
		node := edge.Node
		if node.Broadcaster == nil || node.Broadcaster.ID == "" {
			continue
		}
		s := DirectoryStream{
			ChannelID:    node.Broadcaster.ID,
			Login:        node.Broadcaster.Login,
			DisplayName:  node.Broadcaster.DisplayName,
			ViewersCount: node.ViewersCount,
		}
		if node.Game != nil {
			s.GameID = node.Game.ID
		}
		streams = append(streams, s)
	}
	return streams, nil
}

// ResolveGameSlug turns a game name into its directory slug. Returns empty
// when the platform does not know the game.
func (c *Client) ResolveGameSlug(ctx context.Context, name string) (string, error) {
	vars := map[string]any{"name": name}
	data, err := c.PostGQL(ctx, constants.GQLSlugRedirect, vars)
	if err != nil {
		return "", fmt.Errorf("ResolveGameSlug for %s: %w", name, err)
	}

	var resp struct {
		Game *struct {
			Slug string `json:"slug"`
		} `json:"game"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parsing ResolveGameSlug response: %w", err)
	}
	if resp.Game == nil {
		return "", nil
	}
	return resp.Game.Slug, nil
}

// DeleteNotification removes an on-site notification after it was handled.
func (c *Client) DeleteNotification(ctx context.Context, notificationID string) error {
	vars := map[string]any{
		"input": map[string]any{
			"id": notificationID,
		},
	}
	if _, err := c.PostGQL(ctx, constants.GQLNotificationsDelete, vars); err != nil {
		return fmt.Errorf("DeleteNotification: %w", err)
	}
	return nil
}
