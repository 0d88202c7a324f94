package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	logx "ailurus/pkg/logx"
)

const userAgent = "Mozilla/5.0 (X11; AOSC OS; Linux x86_64; rv:98.0) Gecko/20100101 Firefox/98.0"

// Client queries the bilibili dynamic and live APIs.
type Client struct {
	http *http.Client
	log  logx.Logger

	shortIDs *ShortIDCache
}

// NewClient wraps httpc. The short-id cache is an injected dependency so
// callers control its lifetime and tests can prime it.
func NewClient(httpc *http.Client, cache *ShortIDCache, log logx.Logger) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	if cache == nil {
		cache = NewShortIDCache()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{http: httpc, log: log, shortIDs: cache}
}

func (c *Client) getJSON(ctx context.Context, url, referer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("bilibili: GET %s: http %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bilibili: GET %s: decode: %w", url, err)
	}
	return nil
}

// ShortIDCache maps short live-room aliases to real room ids. The mapping
// is immutable upstream, so entries are never evicted.
type ShortIDCache struct {
	mu sync.Mutex
	m  map[uint64]uint64
}

func NewShortIDCache() *ShortIDCache {
	return &ShortIDCache{m: map[uint64]uint64{}}
}

func (c *ShortIDCache) lookup(short uint64) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[short]
	return v, ok
}

func (c *ShortIDCache) store(short, real uint64) {
	c.mu.Lock()
	c.m[short] = real
	c.mu.Unlock()
}
