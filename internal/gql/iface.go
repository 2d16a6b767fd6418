package gql

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Guliveer/twitch-drops-go/internal/constants"
)

// Operations is the interface for all GQL query/mutation methods.
// *Client satisfies this interface.
type Operations interface {
	PostGQL(ctx context.Context, op constants.GQLOperation, vars map[string]any) (json.RawMessage, error)
	PostGQLBatch(ctx context.Context, ops []constants.GQLOperation, varsList []map[string]any) ([]json.RawMessage, error)
	HTTPClient() *http.Client
	SetProxy(proxyURL string) error

	GetStreamInfo(ctx context.Context, channelLogin string) (*StreamInfoResponse, error)
	GetInventory(ctx context.Context) (json.RawMessage, error)
	GetCampaigns(ctx context.Context) ([]json.RawMessage, error)
	GetCampaignDetails(ctx context.Context, campaignIDs []string, userLogin string) ([]json.RawMessage, error)
	GetCurrentDrop(ctx context.Context, channelID string) (*CurrentDropResponse, error)
	ClaimDrop(ctx context.Context, dropInstanceID string) (bool, error)
	GetAvailableDrops(ctx context.Context, channelID string) ([]string, error)
	GetPlaybackAccessToken(ctx context.Context, login string) (*PlaybackAccessToken, error)
	GetGameDirectory(ctx context.Context, slug string, limit int, dropsOnly bool) ([]DirectoryStream, error)
	ResolveGameSlug(ctx context.Context, name string) (string, error)
	DeleteNotification(ctx context.Context, notificationID string) error
}
