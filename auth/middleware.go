package auth

import (
	"net/http"
)

type Middleware struct {
	verifier     Verifier
	extractor    KeyExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

func NewMiddleware(verifier Verifier, opts ...MiddlewareOption) (*Middleware, error) {
	cfg, err := newMiddlewareConfig(verifier, opts...)
	if err != nil {
		return nil, err
	}
	return &Middleware{
		verifier:     cfg.verifier,
		extractor:    cfg.extractor,
		skipper:      cfg.skipper,
		errorHandler: cfg.errorHandler,
	}, nil
}

// Authenticate runs the extractor and verifier against r. It reports
// skipped requests with ok == false and a nil error.
func (m *Middleware) Authenticate(r *http.Request) (p Principal, ok bool, err error) {
	if m.skipper(r) {
		return Principal{}, false, nil
	}
	raw, err := m.extractor(r)
	if err != nil {
		return Principal{}, false, err
	}
	p, err = m.verifier.VerifyKey(r.Context(), raw)
	if err != nil {
		return Principal{}, false, err
	}
	return p, true, nil
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m == nil {
		panic("auth: middleware is nil")
	}
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok, err := m.Authenticate(r)
		if err != nil {
			m.errorHandler(w, r, err)
			return
		}
		if ok {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}
