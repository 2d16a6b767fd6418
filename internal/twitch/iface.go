package twitch

import (
	"context"

	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// API is the high-level Twitch interface used by the miner services.
// *Client satisfies this interface.
type API interface {
	Login(ctx context.Context) error
	FetchStream(ctx context.Context, ch *model.Channel) (*model.Stream, error)
	RefreshBeacon(ctx context.Context) (string, error)
	SendWatch(ctx context.Context, ch *model.Channel) error
	VerifyProxy(ctx context.Context, proxyURL string) error
}
