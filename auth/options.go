package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// HeaderAPIKey is the header read by HeaderKeyExtractor by default.
const HeaderAPIKey = "X-API-Key"

type KeyExtractor func(*http.Request) (string, error)

type MiddlewareSkipper func(*http.Request) bool

type MiddlewareErrorHandler func(http.ResponseWriter, *http.Request, error)

type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	verifier     Verifier
	extractor    KeyExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

func newMiddlewareConfig(verifier Verifier, opts ...MiddlewareOption) (middlewareConfig, error) {
	if verifier == nil {
		return middlewareConfig{}, errors.New("auth: middleware requires a key verifier")
	}
	cfg := middlewareConfig{
		verifier:     verifier,
		extractor:    DefaultKeyExtractor(),
		skipper:      defaultSkipper,
		errorHandler: defaultErrorHandler,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg, nil
}

func WithKeyExtractor(extractor KeyExtractor) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if extractor != nil {
			cfg.extractor = extractor
		}
	}
}

func WithSkipper(skipper MiddlewareSkipper) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if skipper != nil {
			cfg.skipper = skipper
		}
	}
}

func WithErrorHandler(handler MiddlewareErrorHandler) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if handler != nil {
			cfg.errorHandler = handler
		}
	}
}

// DefaultKeyExtractor accepts "Authorization: Bearer <key>" or X-API-Key.
func DefaultKeyExtractor() KeyExtractor {
	return ChainExtractors(BearerKeyExtractor(), HeaderKeyExtractor(HeaderAPIKey))
}

func BearerKeyExtractor() KeyExtractor {
	return func(r *http.Request) (string, error) {
		header := r.Header.Get("Authorization")
		if header == "" {
			return "", ErrKeyNotFound
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", ErrKeyInvalid
		}
		key := strings.TrimSpace(parts[1])
		if key == "" {
			return "", ErrKeyInvalid
		}
		return key, nil
	}
}

func HeaderKeyExtractor(name string) KeyExtractor {
	name = strings.TrimSpace(name)
	return func(r *http.Request) (string, error) {
		if name == "" {
			return "", ErrKeyInvalid
		}
		key := strings.TrimSpace(r.Header.Get(name))
		if key == "" {
			return "", ErrKeyNotFound
		}
		return key, nil
	}
}

// ChainExtractors tries each extractor in order. A missing key moves on to
// the next one; a malformed key stops the chain.
func ChainExtractors(extractors ...KeyExtractor) KeyExtractor {
	copied := append([]KeyExtractor(nil), extractors...)
	return func(r *http.Request) (string, error) {
		var lastErr error = ErrKeyNotFound
		for _, extractor := range copied {
			if extractor == nil {
				continue
			}
			key, err := extractor(r)
			if err == nil {
				return key, nil
			}
			if !errors.Is(err, ErrKeyNotFound) {
				return "", err
			}
			lastErr = err
		}
		return "", lastErr
	}
}

func defaultSkipper(*http.Request) bool { return false }

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	http.Error(w, err.Error(), status)
}
