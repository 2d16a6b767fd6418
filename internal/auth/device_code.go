package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/errs"
)

// DeviceCodeResponse represents the response from the device code endpoint.
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
}

// TokenResponse represents a successful token response.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	ExpiresIn    int      `json:"expires_in"`
	RefreshToken string   `json:"refresh_token"`
	Scope        []string `json:"scope"`
	TokenType    string   `json:"token_type"`
}

// TokenErrorResponse represents an error response from the token endpoint.
type TokenErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// loginWithDeviceCode runs the device code flow until the user authorizes the
// miner. An expired code is replaced with a fresh one and polling continues,
// so the flow only fails on cancellation or a hard endpoint error.
func (a *Authenticator) loginWithDeviceCode(ctx context.Context) error {
	for {
		dcResp, err := a.requestDeviceCode(ctx)
		if err != nil {
			return fmt.Errorf("requesting device code: %w", err)
		}

		a.log.Info("Device code login required",
			"url", dcResp.VerificationURI, "code", dcResp.UserCode)
		if a.onCodeRequired != nil {
			a.onCodeRequired(dcResp.UserCode, dcResp.VerificationURI)
		}

		tokenResp, err := a.pollForToken(ctx, dcResp.DeviceCode, dcResp.Interval, dcResp.ExpiresIn)
		if err != nil {
			if errors.Is(err, errCodeExpired) {
				a.log.Warn("Device code expired, requesting a new one")
				continue
			}
			return fmt.Errorf("polling for token: %w", err)
		}

		a.authToken = tokenResp.AccessToken
		if err := a.validateToken(ctx); err != nil {
			return fmt.Errorf("token validation after device login: %w", err)
		}

		a.cookieJar.Set("auth-token", a.authToken)
		a.saveCookies()
		a.log.Info("Authenticated via device code flow",
			"login", a.login, "user_id", a.userID)
		return nil
	}
}

// errCodeExpired marks a device code the user did not confirm in time.
var errCodeExpired = errors.New("device code expired")

// requestDeviceCode asks the platform for a fresh user/device code pair. No
// scopes are requested; the mobile client ID grants everything the miner
// needs.
func (a *Authenticator) requestDeviceCode(ctx context.Context) (*DeviceCodeResponse, error) {
	form := url.Values{
		"client_id": {constants.ClientIDAndroid},
		"scopes":    {""},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, constants.DeviceCodeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating device code request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", constants.AndroidUserAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &errs.RequestError{URL: constants.DeviceCodeURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading device code response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.RequestError{Status: resp.StatusCode, URL: constants.DeviceCodeURL}
	}

	var dcResp DeviceCodeResponse
	if err := json.Unmarshal(body, &dcResp); err != nil {
		return nil, fmt.Errorf("parsing device code response: %w", err)
	}
	if dcResp.DeviceCode == "" || dcResp.UserCode == "" {
		return nil, fmt.Errorf("device code response missing required fields")
	}
	if dcResp.VerificationURI == "" {
		dcResp.VerificationURI = constants.ActivateURL
	}
	return &dcResp, nil
}

// pollForToken polls the token endpoint until the user authorizes the device,
// the code expires, or the context is cancelled.
func (a *Authenticator) pollForToken(ctx context.Context, deviceCode string, interval, expiresIn int) (*TokenResponse, error) {
	if interval <= 0 {
		interval = 5
	}

	deadline := time.Now().Add(time.Duration(expiresIn) * time.Second)
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("device code login cancelled: %w", ctx.Err())
		case t := <-ticker.C:
			if t.After(deadline) {
				return nil, errCodeExpired
			}
			tokenResp, err := a.requestToken(ctx, deviceCode)
			if err != nil {
				return nil, err
			}
			if tokenResp != nil {
				return tokenResp, nil
			}
		}
	}
}

// requestToken makes a single token request. Returns (nil, nil) while the
// authorization is still pending.
func (a *Authenticator) requestToken(ctx context.Context, deviceCode string) (*TokenResponse, error) {
	form := url.Values{
		"client_id":   {constants.ClientIDAndroid},
		"device_code": {deviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, constants.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", constants.AndroidUserAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &errs.RequestError{URL: constants.TokenURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var tokenResp TokenResponse
		if err := json.Unmarshal(body, &tokenResp); err != nil {
			return nil, fmt.Errorf("parsing token response: %w", err)
		}
		if tokenResp.AccessToken == "" {
			return nil, fmt.Errorf("token response missing access_token")
		}
		return &tokenResp, nil
	}

	if resp.StatusCode == http.StatusBadRequest {
		var errResp TokenErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, fmt.Errorf("parsing token error response: %w", err)
		}
		switch errResp.Message {
		case "authorization_pending":
			return nil, nil
		case "slow_down":
			a.log.Debug("Token endpoint requested slow down")
			return nil, nil
		case "expired_token":
			return nil, errCodeExpired
		default:
			return nil, fmt.Errorf("token request failed: %s (status %d)", errResp.Message, errResp.Status)
		}
	}

	return nil, &errs.RequestError{Status: resp.StatusCode, URL: constants.TokenURL}
}
