// Package auth guards the admin API with bcrypt-hashed API keys.
package auth

import (
	"context"
	"errors"
)

var (
	ErrKeyNotFound = errors.New("auth: api key not found")
	ErrKeyInvalid  = errors.New("auth: api key invalid")
)

// Principal identifies the holder of a verified key.
type Principal struct {
	Name string
}

// Verifier checks a raw API key and reports who it belongs to.
type Verifier interface {
	VerifyKey(ctx context.Context, raw string) (Principal, error)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
