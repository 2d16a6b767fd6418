// Package twitch provides the high-level Twitch client used by the miner:
// stream state lookups, watch beacon discovery, and the minute-watched
// heartbeat payloads.
package twitch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Guliveer/twitch-drops-go/internal/auth"
	"github.com/Guliveer/twitch-drops-go/internal/backoff"
	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/errs"
	"github.com/Guliveer/twitch-drops-go/internal/gql"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

var (
	settingsURLRegex = regexp.MustCompile(`(https://static\.twitchcdn\.net/config/settings.*?js|https://assets\.twitch\.tv/config/settings.*?\.js)`)
	spadeURLRegex    = regexp.MustCompile(`"spade_url":"(.*?)"`)
)

// spadeCacheTTL is how long a cached beacon URL remains valid. The URL is
// global, not per-channel, and rarely rotates.
const spadeCacheTTL = 6 * time.Hour

type spadeCache struct {
	mu        sync.RWMutex
	url       string
	fetchedAt time.Time
}

func (sc *spadeCache) get() (string, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.url == "" || time.Since(sc.fetchedAt) > spadeCacheTTL {
		return "", false
	}
	return sc.url, true
}

func (sc *spadeCache) set(url string) {
	sc.mu.Lock()
	sc.url = url
	sc.fetchedAt = time.Now()
	sc.mu.Unlock()
}

func (sc *spadeCache) clear() {
	sc.mu.Lock()
	sc.url = ""
	sc.mu.Unlock()
}

// Client is the high-level Twitch facade combining auth, GQL, and the plain
// HTTP endpoints the miner touches.
type Client struct {
	Auth auth.Provider
	GQL  gql.Operations
	Log  *logger.Logger

	httpClient *http.Client
	limiter    *rate.Limiter
	spade      *spadeCache
	player     *playerSession
}

// NewClient creates a Twitch client on top of an authenticator and GQL client.
func NewClient(authenticator auth.Provider, gqlClient gql.Operations, log *logger.Logger) *Client {
	return &Client{
		Auth:       authenticator,
		GQL:        gqlClient,
		Log:        log,
		httpClient: gqlClient.HTTPClient(),
		limiter:    backoff.NewHTTPLimiter(),
		spade:      &spadeCache{},
		player:     &playerSession{},
	}
}

// Login performs the authentication flow.
func (c *Client) Login(ctx context.Context) error {
	return c.Auth.Login(ctx)
}

// FetchStream fetches current stream state for a channel. A nil result means
// the channel is offline.
func (c *Client) FetchStream(ctx context.Context, ch *model.Channel) (*model.Stream, error) {
	info, err := c.GQL.GetStreamInfo(ctx, ch.Login)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	beacon, err := c.beaconURL(ctx)
	if err != nil {
		c.Log.Debug("Failed to resolve watch beacon", "channel", ch.Login, "error", err)
	}

	return &model.Stream{
		BroadcastID:  info.BroadcastID,
		Game:         info.Game,
		Title:        info.Title,
		ViewerCount:  info.ViewersCount,
		DropsEnabled: info.DropsEnabled,
		BeaconURL:    beacon,
	}, nil
}

// RefreshBeacon drops the cached beacon URL and scrapes a fresh one. Called
// after the beacon endpoint answered 404 or 410.
func (c *Client) RefreshBeacon(ctx context.Context) (string, error) {
	c.spade.clear()
	return c.beaconURL(ctx)
}

// beaconURL returns the minute-watched beacon endpoint, scraping the main
// page settings bundle when the cache is cold.
func (c *Client) beaconURL(ctx context.Context) (string, error) {
	if cached, ok := c.spade.get(); ok {
		return cached, nil
	}

	body, err := c.fetchPage(ctx, constants.TwitchURL)
	if err != nil {
		return "", err
	}
	settingsURL := settingsURLRegex.FindString(string(body))
	if settingsURL == "" {
		return "", fmt.Errorf("settings bundle URL not found on main page")
	}

	settingsBody, err := c.fetchPage(ctx, settingsURL)
	if err != nil {
		return "", err
	}
	m := spadeURLRegex.FindSubmatch(settingsBody)
	if len(m) < 2 {
		return "", fmt.Errorf("spade_url not found in settings bundle")
	}

	beacon := string(m[1])
	c.spade.set(beacon)
	c.Log.Debug("Resolved watch beacon", "url", beacon)
	return beacon, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", constants.BrowserUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errs.RequestError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errs.RequestError{Status: resp.StatusCode, URL: pageURL}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// VerifyProxy probes the given proxy URL by requesting the token validation
// endpoint through it. The proxy is not persisted.
func (c *Client) VerifyProxy(ctx context.Context, proxyURL string) error {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return &errs.RequestInvalid{URL: proxyURL}
	}

	probe := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
		Timeout:   constants.DefaultHTTPTimeout,
	}
	defer probe.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, constants.ValidateURL, nil)
	if err != nil {
		return fmt.Errorf("creating proxy probe: %w", err)
	}
	req.Header.Set("User-Agent", constants.BrowserUserAgent)

	resp, err := probe.Do(req)
	if err != nil {
		return &errs.RequestError{URL: proxyURL, Err: err}
	}
	resp.Body.Close()

	// any HTTP answer proves the proxy forwards traffic
	c.Log.Info("Proxy verified", "proxy", proxyURL, "status", resp.StatusCode)
	return nil
}
