package httpx

import (
	"github.com/adeilh/rakh-cache/auth"
)

// AuthMiddleware authenticates requests with mw and stores the principal on
// the request context. Failures go through the server's error handler.
func AuthMiddleware(mw *auth.Middleware) MiddlewareFunc {
	if mw == nil {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				return HTTPError(StatusUnauthorized, "auth middleware missing")
			}
		}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			p, ok, err := mw.Authenticate(c.Request())
			if err != nil {
				return err
			}
			if ok {
				r := c.Request()
				c.SetRequest(r.WithContext(auth.WithPrincipal(r.Context(), p)))
			}
			return next(c)
		}
	}
}
