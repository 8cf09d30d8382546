package httpx

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adeilh/rakh-cache/cache"
)

const (
	CachePrefix  = "/cache"
	HealthPath   = "/healthz"
	MetricsPath  = "/metrics"
	entriesPath  = "/entries"
	contentBytes = "application/octet-stream"

	// HeaderTTL carries an entry's remaining lifetime in milliseconds. It is
	// omitted for entries that never expire.
	HeaderTTL = "X-Cache-TTL"
)

// RegisterHealth installs GET /healthz.
func RegisterHealth(a *App) {
	a.GET(HealthPath, func(c Context) error {
		return c.JSON(StatusOK, map[string]string{"status": "ok"})
	})
}

// RegisterMetrics exposes g in the Prometheus text format on GET /metrics.
func RegisterMetrics(a *App, g prometheus.Gatherer) {
	if g == nil {
		return
	}
	a.GET(MetricsPath, echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}

// RegisterCacheRoutes mounts the cache admin API for store under /cache.
// Stats and Clear answer 501 when store does not support them.
func RegisterCacheRoutes(a *App, store cache.Store, mw ...MiddlewareFunc) {
	h := cacheHandlers{store: store}
	NewRouter(a, CachePrefix, mw...).Add(
		Route{Method: http.MethodGet, Path: "/stats", Handler: h.stats},
		Route{Method: http.MethodGet, Path: entriesPath + "/:key", Handler: h.get},
		Route{Method: http.MethodPut, Path: entriesPath + "/:key", Handler: h.put},
		Route{Method: http.MethodDelete, Path: entriesPath + "/:key", Handler: h.delete},
		Route{Method: http.MethodDelete, Path: entriesPath, Handler: h.clear},
	)
}

type cacheHandlers struct {
	store cache.Store
}

func (h cacheHandlers) stats(c Context) error {
	sr, ok := h.store.(cache.StatsReporter)
	if !ok {
		return HTTPError(http.StatusNotImplemented, "stats not supported by this store")
	}
	stats, err := sr.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(StatusOK, stats)
}

func (h cacheHandlers) get(c Context) error {
	key, err := entryKey(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tg, ok := h.store.(cache.TTLGetter)
	if !ok {
		v, err := h.store.Get(ctx, key)
		if err != nil {
			return err
		}
		return c.Blob(StatusOK, contentBytes, v)
	}
	v, ttl, err := tg.GetWithTTL(ctx, key)
	if err != nil {
		return err
	}
	if ttl > 0 {
		c.Response().Header().Set(HeaderTTL, strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	return c.Blob(StatusOK, contentBytes, v)
}

func (h cacheHandlers) put(c Context) error {
	key, err := entryKey(c)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if raw := c.QueryParam("ttl"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl < 0 {
			return HTTPError(StatusBadRequest, "ttl must be a non-negative duration such as 30s")
		}
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	if err := h.store.Set(c.Request().Context(), key, body, ttl); err != nil {
		return err
	}
	return c.NoContent(StatusNoContent)
}

func (h cacheHandlers) delete(c Context) error {
	key, err := entryKey(c)
	if err != nil {
		return err
	}
	if err := h.store.Delete(c.Request().Context(), key); err != nil {
		return err
	}
	return c.NoContent(StatusNoContent)
}

func (h cacheHandlers) clear(c Context) error {
	cl, ok := h.store.(cache.Clearer)
	if !ok {
		return HTTPError(http.StatusNotImplemented, "clear not supported by this store")
	}
	if err := cl.Clear(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(StatusNoContent)
}

// entryKey returns the :key parameter. Echo routes on the escaped path when
// the request carries one, so the parameter is unescaped in that case only.
func entryKey(c Context) (string, error) {
	raw := c.Param("key")
	if c.Request().URL.RawPath == "" {
		return raw, nil
	}
	key, err := url.PathUnescape(raw)
	if err != nil {
		return "", HTTPError(StatusBadRequest, "malformed key escape")
	}
	return key, nil
}

func entryURL(key string) string {
	return CachePrefix + entriesPath + "/" + url.PathEscape(key)
}
