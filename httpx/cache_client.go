package httpx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/adeilh/rakh-cache/cache"
)

// CacheClient talks to a remote node's cache admin API. It lets one node
// serve as the backing tier of another.
type CacheClient struct {
	c      *Client
	apiKey string
}

var (
	_ cache.Store         = (*CacheClient)(nil)
	_ cache.Clearer       = (*CacheClient)(nil)
	_ cache.StatsReporter = (*CacheClient)(nil)
	_ cache.TTLGetter     = (*CacheClient)(nil)
)

// NewCacheClient targets baseURL. apiKey is sent as a bearer token when set.
func NewCacheClient(baseURL, apiKey string, opts ...ClientOption) *CacheClient {
	opts = append([]ClientOption{WithBaseURL(baseURL)}, opts...)
	return &CacheClient{c: NewClient(opts...), apiKey: apiKey}
}

func (cc *CacheClient) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}
	resp, err := cc.c.Get(ctx, entryURL(key), nil, WithBearer(cc.apiKey))
	if err != nil {
		return nil, remoteError("get", key, resp, err)
	}
	return resp.Body(), nil
}

// GetWithTTL reads the remaining lifetime from the X-Cache-TTL header. A
// missing header reports 0.
func (cc *CacheClient) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, 0, err
	}
	resp, err := cc.c.Get(ctx, entryURL(key), nil, WithBearer(cc.apiKey))
	if err != nil {
		return nil, 0, remoteError("get", key, resp, err)
	}
	var ttl time.Duration
	if h := resp.Header().Get(HeaderTTL); h != "" {
		ms, err := strconv.ParseInt(h, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("httpx: get %q: bad %s header %q", key, HeaderTTL, h)
		}
		ttl = time.Duration(ms) * time.Millisecond
	}
	return resp.Body(), ttl, nil
}

func (cc *CacheClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	opts := []RequestOption{
		WithBearer(cc.apiKey),
		WithRequestHeaders(map[string]string{"Content-Type": contentBytes}),
	}
	if ttl > 0 {
		opts = append(opts, WithQuery(map[string]string{"ttl": ttl.String()}))
	}
	resp, err := cc.c.Put(ctx, entryURL(key), value, nil, opts...)
	if err != nil {
		return remoteError("set", key, resp, err)
	}
	return nil
}

func (cc *CacheClient) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	resp, err := cc.c.Delete(ctx, entryURL(key), nil, WithBearer(cc.apiKey))
	if err != nil {
		return remoteError("delete", key, resp, err)
	}
	return nil
}

func (cc *CacheClient) Clear(ctx context.Context) error {
	resp, err := cc.c.Delete(ctx, CachePrefix+entriesPath, nil, WithBearer(cc.apiKey))
	if err != nil {
		return remoteError("clear", "", resp, err)
	}
	return nil
}

func (cc *CacheClient) Stats(ctx context.Context) (cache.Stats, error) {
	var stats cache.Stats
	resp, err := cc.c.Get(ctx, CachePrefix+"/stats", &stats, WithBearer(cc.apiKey))
	if err != nil {
		return cache.Stats{}, remoteError("stats", "", resp, err)
	}
	return stats, nil
}

func remoteError(op, key string, resp *resty.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode() {
		case StatusNotFound:
			return cache.ErrNotFound
		case StatusBadRequest:
			return fmt.Errorf("%w: %s", cache.ErrInvalidKey, key)
		}
	}
	if key == "" {
		return fmt.Errorf("httpx: remote %s: %w", op, err)
	}
	return fmt.Errorf("httpx: remote %s %q: %w", op, key, err)
}
