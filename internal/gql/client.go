// Package gql provides a typed GraphQL client for the Twitch GQL API.
// It handles connection pooling, request batching, rate limiting, and error
// handling with bounded retries.
package gql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	expbackoff "github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/Guliveer/twitch-drops-go/internal/auth"
	"github.com/Guliveer/twitch-drops-go/internal/backoff"
	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/errs"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
)

// Client is the Twitch GQL HTTP client with connection pooling, a shared
// token bucket, and retry logic.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	auth       auth.Provider
	log        *logger.Logger
	limiter    *rate.Limiter

	mu sync.RWMutex
}

// NewClient creates a GQL Client with a pooled transport and the given
// authenticator.
func NewClient(authenticator auth.Provider, log *logger.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   constants.DefaultHTTPTimeout,
		},
		transport: transport,
		auth:      authenticator,
		log:       log,
		limiter:   backoff.NewGQLLimiter(),
	}
}

// SetProxy routes all GQL traffic through the given proxy URL. An empty URL
// restores a direct connection.
func (c *Client) SetProxy(proxyURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if proxyURL == "" {
		c.transport.Proxy = nil
		return nil
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy url: %w", err)
	}
	c.transport.Proxy = http.ProxyURL(parsed)
	c.transport.CloseIdleConnections()
	return nil
}

// HTTPClient returns the underlying *http.Client for reuse by other packages
// that need the same connection pool.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    *gqlExtensions `json:"extensions,omitempty"`
	Query         string         `json:"query,omitempty"`
}

type gqlExtensions struct {
	PersistedQuery *persistedQuery `json:"persistedQuery"`
}

type persistedQuery struct {
	Version    int    `json:"version"`
	SHA256Hash string `json:"sha256Hash"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// PostGQL sends a single GQL operation and returns the "data" portion of the
// response. Transient failures and platform service errors are retried with
// backoff, everything else is surfaced.
func (c *Client) PostGQL(ctx context.Context, op constants.GQLOperation, variables map[string]any) (json.RawMessage, error) {
	results, err := c.PostGQLBatch(ctx, []constants.GQLOperation{op}, []map[string]any{variables})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// PostGQLBatch sends multiple GQL operations as JSON-array batches. Requests
// are split so no single HTTP call carries more than MaxGQLBatch operations.
func (c *Client) PostGQLBatch(ctx context.Context, ops []constants.GQLOperation, varsList []map[string]any) ([]json.RawMessage, error) {
	if len(ops) != len(varsList) {
		return nil, errs.Minerf("ops and varsList length mismatch: %d != %d", len(ops), len(varsList))
	}

	results := make([]json.RawMessage, 0, len(ops))
	for start := 0; start < len(ops); start += constants.MaxGQLBatch {
		end := start + constants.MaxGQLBatch
		if end > len(ops) {
			end = len(ops)
		}
		chunk, err := c.postChunk(ctx, ops[start:end], varsList[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}
	return results, nil
}

func (c *Client) postChunk(ctx context.Context, ops []constants.GQLOperation, varsList []map[string]any) ([]json.RawMessage, error) {
	batch := make([]gqlRequest, len(ops))
	for i, op := range ops {
		batch[i] = buildRequestBody(op, varsList[i])
	}

	var body []byte
	var err error
	if len(batch) == 1 {
		body, err = json.Marshal(batch[0])
	} else {
		body, err = json.Marshal(batch)
	}
	if err != nil {
		return nil, fmt.Errorf("marshaling GQL request: %w", err)
	}

	opName := ops[0].OperationName
	if len(ops) > 1 {
		opName = fmt.Sprintf("batch[%d]", len(ops))
	}

	var results []json.RawMessage
	attempt := 0
	err = backoff.Retry(ctx, func() error {
		attempt++
		if attempt > 1 {
			c.log.Debug("Retrying GQL request", "operation", opName, "attempt", attempt)
		}
		respBody, err := c.doHTTPRequest(ctx, body, opName)
		if err != nil {
			if !errs.Retryable(err) {
				return expbackoff.Permanent(err)
			}
			return err
		}
		results, err = parseResponses(respBody, len(ops), opName)
		if err != nil {
			var gqlErr *errs.GQLError
			if errors.As(err, &gqlErr) && gqlErr.ServiceError() {
				return err
			}
			return expbackoff.Permanent(err)
		}
		return nil
	})
	if err != nil {
		c.log.Warn("GQL request failed", "operation", opName, "attempts", attempt, "error", err)
		return nil, err
	}
	return results, nil
}

func buildRequestBody(op constants.GQLOperation, variables map[string]any) gqlRequest {
	req := gqlRequest{
		OperationName: op.OperationName,
		Variables:     variables,
	}
	if op.Query != "" {
		req.Query = op.Query
	} else {
		req.Extensions = &gqlExtensions{
			PersistedQuery: &persistedQuery{
				Version:    1,
				SHA256Hash: op.SHA256Hash,
			},
		}
	}
	return req
}

// parseResponses normalizes single and batched response shapes and folds the
// platform error payloads into the error taxonomy. A "server error" entry
// nulls out part of the data but the rest of the response stays usable.
func parseResponses(respBody []byte, n int, opName string) ([]json.RawMessage, error) {
	var responses []gqlResponse
	if n == 1 {
		var single gqlResponse
		if err := json.Unmarshal(respBody, &single); err != nil {
			return nil, fmt.Errorf("parsing GQL response for %s: %w", opName, err)
		}
		responses = []gqlResponse{single}
	} else {
		if err := json.Unmarshal(respBody, &responses); err != nil {
			return nil, fmt.Errorf("parsing batch GQL response for %s: %w", opName, err)
		}
		if len(responses) != n {
			return nil, errs.Minerf("batch response count mismatch: sent %d, got %d", n, len(responses))
		}
	}

	results := make([]json.RawMessage, len(responses))
	var messages []string
	for i, r := range responses {
		for _, e := range r.Errors {
			if e.Message == "server error" {
				continue
			}
			messages = append(messages, e.Message)
		}
		results[i] = r.Data
	}
	if len(messages) > 0 {
		return nil, &errs.GQLError{Operation: opName, Messages: messages}
	}
	return results, nil
}

// doHTTPRequest performs one HTTP POST with auth headers under the shared
// rate limit. Status codes map onto the error taxonomy; the caller decides
// about retries.
func (c *Client) doHTTPRequest(ctx context.Context, jsonBody []byte, opName string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, constants.GQLURL,
		bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating GQL request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.auth.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errs.RequestError{URL: constants.GQLURL, Err: err}
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	resp.Body.Close()
	if readErr != nil {
		return nil, &errs.RequestError{URL: constants.GQLURL, Err: readErr}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		c.log.Debug("GQL request completed", "operation", opName)
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &errs.RequestError{Status: resp.StatusCode, URL: constants.GQLURL,
			Err: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return nil, &errs.RequestError{Status: resp.StatusCode, URL: constants.GQLURL}
	default:
		return nil, &errs.RequestInvalid{Status: resp.StatusCode, URL: constants.GQLURL}
	}
}

// parseRetryAfter turns a Retry-After header into a delay directive the retry
// loop honors instead of its own next backoff. Returns nil when the header is
// absent or unparseable, falling back to normal backoff.
func parseRetryAfter(header string) error {
	if header == "" {
		return nil
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return backoff.RetryAfter(time.Duration(secs) * time.Second)
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return backoff.RetryAfter(d)
		}
	}
	return nil
}
