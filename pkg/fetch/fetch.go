// Package fetch retrieves patch-notes pages. It discovers the current
// patch article from the news tag page and fetches article bodies
// with an in-process cache; concurrent fetches of the same URL
// collapse into one request.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher downloads pages at most once per URL per process.
type Fetcher struct {
	httpClient *http.Client

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		cache:      make(map[string][]byte),
	}
}

// Get returns the body of url, from cache when already fetched.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	f.cacheMu.RLock()
	if cached, ok := f.cache[url]; ok {
		f.cacheMu.RUnlock()
		return cached, nil
	}
	f.cacheMu.RUnlock()

	result, err, _ := f.group.Do(url, func() (any, error) {
		f.cacheMu.RLock()
		if cached, ok := f.cache[url]; ok {
			f.cacheMu.RUnlock()
			return cached, nil
		}
		f.cacheMu.RUnlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", url, err)
		}

		f.cacheMu.Lock()
		f.cache[url] = body
		f.cacheMu.Unlock()

		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
