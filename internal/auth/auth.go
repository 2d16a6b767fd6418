package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/errs"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
)

// CodeRequiredFunc is invoked when the user must authorize the miner by
// entering a device code on the activation page.
type CodeRequiredFunc func(userCode, verificationURI string)

// Authenticator handles Twitch login, token management, and cookie
// persistence. It is safe for concurrent use.
type Authenticator struct {
	mu sync.RWMutex

	login     string
	authToken string
	userID    string
	deviceID  string
	sessionID string

	cookieJar  *CookieJar
	cookieFile string

	log        *logger.Logger
	httpClient *http.Client

	// onCodeRequired is called once per device code round; nil means the
	// code is only logged.
	onCodeRequired CodeRequiredFunc
}

// NewAuthenticator creates an Authenticator persisting cookies at cookieFile.
func NewAuthenticator(cookieFile string, log *logger.Logger) *Authenticator {
	return &Authenticator{
		cookieFile: cookieFile,
		cookieJar:  NewCookieJar(),
		sessionID:  uuid.NewString(),
		log:        log,
		httpClient: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
		},
	}
}

// SetTransport swaps the underlying transport, used to route auth traffic
// through the configured proxy.
func (a *Authenticator) SetTransport(rt http.RoundTripper) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.httpClient.Transport = rt
}

// OnCodeRequired registers the device code callback.
func (a *Authenticator) OnCodeRequired(fn CodeRequiredFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onCodeRequired = fn
}

// Login restores the session from cookies.jar when possible and falls back to
// the device code flow. The device ID is pinned to the unique_id cookie so the
// platform sees a stable device across restarts.
func (a *Authenticator) Login(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if CookieFileExists(a.cookieFile) {
		if err := a.cookieJar.Load(a.cookieFile); err != nil {
			a.log.Warn("Failed to load cookies, starting fresh", "error", err)
			a.cookieJar.Clear()
		}
	}

	if a.deviceID = a.cookieJar.Get("unique_id"); a.deviceID == "" {
		a.deviceID = generateDeviceID()
		a.cookieJar.Set("unique_id", a.deviceID)
	}

	if token := a.cookieJar.Get("auth-token"); token != "" {
		a.authToken = token
		err := a.validateToken(ctx)
		if err == nil {
			a.log.Info("Restored session from cookies",
				"login", a.login, "user_id", a.userID)
			a.saveCookies()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Warn("Cached token rejected, device login required", "error", err)
		a.authToken = ""
		a.cookieJar.Delete("auth-token")
	}

	if err := a.loginWithDeviceCode(ctx); err != nil {
		return &errs.LoginError{Msg: "device code flow failed", Err: err}
	}
	return nil
}

// validateToken checks the current token against the OAuth2 validate endpoint
// and records the session identity. A token minted for a different client ID
// cannot be reused; the whole jar is discarded in that case.
func (a *Authenticator) validateToken(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, constants.ValidateURL, nil)
	if err != nil {
		return fmt.Errorf("create validate request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+a.authToken)
	req.Header.Set("User-Agent", constants.AndroidUserAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &errs.RequestError{URL: constants.ValidateURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &errs.RequestInvalid{Status: resp.StatusCode, URL: constants.ValidateURL}
	}
	if resp.StatusCode != http.StatusOK {
		return &errs.RequestError{Status: resp.StatusCode, URL: constants.ValidateURL}
	}

	var result struct {
		ClientID string `json:"client_id"`
		Login    string `json:"login"`
		UserID   string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode validate response: %w", err)
	}

	if result.ClientID != constants.ClientIDAndroid {
		a.cookieJar.Clear()
		if err := os.Remove(a.cookieFile); err != nil && !os.IsNotExist(err) {
			a.log.Warn("Failed to remove stale cookie file", "error", err)
		}
		return fmt.Errorf("token minted for foreign client id %s", result.ClientID)
	}

	a.login = result.Login
	a.userID = result.UserID
	return nil
}

// Invalidate drops the current token after the platform rejected it, forcing
// a fresh device login on the next Login call.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authToken = ""
	a.cookieJar.Delete("auth-token")
	a.saveCookies()
}

func (a *Authenticator) saveCookies() {
	if a.userID != "" {
		a.cookieJar.Set("persistent", a.userID)
	}
	if err := a.cookieJar.Save(a.cookieFile); err != nil {
		a.log.Warn("Failed to save cookies", "error", err)
	}
}

// LoggedIn reports whether a validated token is present.
func (a *Authenticator) LoggedIn() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authToken != "" && a.userID != ""
}

// AuthToken returns the current OAuth token.
func (a *Authenticator) AuthToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authToken
}

// UserID returns the authenticated user's numeric ID.
func (a *Authenticator) UserID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.userID
}

// Login name of the authenticated user.
func (a *Authenticator) Username() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.login
}

// DeviceID returns the device ID used for API requests.
func (a *Authenticator) DeviceID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.deviceID
}

// SessionID returns the per-process client session ID.
func (a *Authenticator) SessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionID
}

// Headers returns the headers required on authenticated API requests.
func (a *Authenticator) Headers() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return map[string]string{
		"Authorization":     "OAuth " + a.authToken,
		"Client-Id":         constants.ClientIDAndroid,
		"Client-Session-Id": a.sessionID,
		"X-Device-Id":       a.deviceID,
		"User-Agent":        constants.AndroidUserAgent,
	}
}

// generateDeviceID creates a random 32-character alphanumeric device ID.
func generateDeviceID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	id := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	b := []byte(id[:32])
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
