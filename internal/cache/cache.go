// Package cache stores campaign and game artwork on disk so the control
// surface can serve it without hitting the CDN per request.
package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/utils"
	"github.com/Guliveer/twitch-drops-go/internal/workerpool"
)

// prefetchWorkers bounds concurrent artwork downloads.
const prefetchWorkers = 4

// Store is a content-addressed file cache keyed by the hash of the source URL.
type Store struct {
	dir        string
	httpClient *http.Client
	log        *logger.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewStore creates a cache rooted at dir, creating it if missing.
func NewStore(dir string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Store{
		dir:        dir,
		httpClient: &http.Client{Timeout: constants.DefaultHTTPTimeout},
		log:        log,
		pending:    make(map[string]struct{}),
	}, nil
}

// Key returns the cache key for a source URL.
func (s *Store) Key(url string) string {
	return utils.HashKey(url)
}

// Path returns the on-disk path for a cache key, or false when the key is not
// cached. Keys are validated so a crafted key cannot escape the cache dir.
func (s *Store) Path(key string) (string, bool) {
	if key == "" || strings.ContainsAny(key, "/\\.") {
		return "", false
	}
	p := filepath.Join(s.dir, key)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Prefetch downloads every URL not already cached. Failures are logged and
// skipped so one dead CDN link never blocks an inventory refresh.
func (s *Store) Prefetch(ctx context.Context, urls []string) {
	missing := make([]string, 0, len(urls))
	s.mu.Lock()
	for _, u := range urls {
		if u == "" {
			continue
		}
		key := s.Key(u)
		if _, ok := s.pending[key]; ok {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, key)); err == nil {
			continue
		}
		s.pending[key] = struct{}{}
		missing = append(missing, u)
	}
	s.mu.Unlock()

	if len(missing) == 0 {
		return
	}

	err := workerpool.Run(ctx, missing, prefetchWorkers, func(ctx context.Context, u string) error {
		defer func() {
			s.mu.Lock()
			delete(s.pending, s.Key(u))
			s.mu.Unlock()
		}()
		if err := s.download(ctx, u); err != nil {
			s.log.Debug("Artwork download failed", "url", u, "error", err)
		}
		return nil
	})
	if err != nil {
		s.log.Debug("Artwork prefetch aborted", "error", err)
	}
}

func (s *Store) download(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", constants.BrowserUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	target := filepath.Join(s.dir, s.Key(url))
	tmp := target + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, io.LimitReader(resp.Body, 4<<20)); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}
