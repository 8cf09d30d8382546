package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeVerifier struct {
	principal Principal
	err       error
	raw       string
}

func (f *fakeVerifier) VerifyKey(_ context.Context, raw string) (Principal, error) {
	f.raw = raw
	if f.err != nil {
		return Principal{}, f.err
	}
	return f.principal, nil
}

func TestNewMiddlewareRequiresVerifier(t *testing.T) {
	if _, err := NewMiddleware(nil); err == nil {
		t.Fatalf("expected error when verifier is nil")
	}
}

func TestMiddlewareInjectsPrincipalIntoContext(t *testing.T) {
	verifier := &fakeVerifier{principal: Principal{Name: "ops"}}
	middleware, err := NewMiddleware(verifier)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer source-key")
	res := httptest.NewRecorder()

	var invoked bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invoked = true
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatalf("principal missing from context")
		}
		if p.Name != "ops" {
			t.Fatalf("unexpected principal injected: %s", p.Name)
		}
	})

	middleware.Handler(next).ServeHTTP(res, req)

	if !invoked {
		t.Fatalf("expected next handler to be invoked")
	}
	if verifier.raw != "source-key" {
		t.Fatalf("verifier received %q", verifier.raw)
	}
}

func TestMiddlewareAcceptsAPIKeyHeader(t *testing.T) {
	verifier := &fakeVerifier{principal: Principal{Name: "ops"}}
	middleware, _ := NewMiddleware(verifier)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, "header-key")
	res := httptest.NewRecorder()
	middleware.Handler(nil).ServeHTTP(res, req)

	if verifier.raw != "header-key" {
		t.Fatalf("verifier received %q", verifier.raw)
	}
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestMiddlewareSkipperShortCircuits(t *testing.T) {
	verifier := &fakeVerifier{}
	middleware, err := NewMiddleware(verifier, WithSkipper(func(*http.Request) bool { return true }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()

	var invoked bool
	middleware.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		invoked = true
		if _, ok := PrincipalFromContext(r.Context()); ok {
			t.Fatalf("skipped request should carry no principal")
		}
	})).ServeHTTP(res, req)

	if !invoked {
		t.Fatalf("expected handler invocation")
	}
	if verifier.raw != "" {
		t.Fatalf("verifier should not be called when skipped")
	}
}

func TestMiddlewareCustomErrorHandler(t *testing.T) {
	var received error
	middleware, err := NewMiddleware(&fakeVerifier{}, WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		received = err
		w.WriteHeader(http.StatusTeapot)
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()

	middleware.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(res, req)

	if !errors.Is(received, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", received)
	}
	if res.Code != http.StatusTeapot {
		t.Fatalf("expected status 418, got %d", res.Code)
	}
}

func TestMiddlewareVerifierError(t *testing.T) {
	middleware, _ := NewMiddleware(&fakeVerifier{err: ErrKeyInvalid})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	res := httptest.NewRecorder()

	var handlerCalled bool
	middleware.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		handlerCalled = true
	})).ServeHTTP(res, req)

	if handlerCalled {
		t.Error("handler should not be called when verification fails")
	}
	if res.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", res.Code)
	}
}

func TestMiddlewareCanceledContext(t *testing.T) {
	middleware, _ := NewMiddleware(&fakeVerifier{err: context.Canceled})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer k")
	res := httptest.NewRecorder()
	middleware.Handler(nil).ServeHTTP(res, req)

	if res.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", res.Code)
	}
}

func TestMiddlewareHandlerPanicsOnNilMiddleware(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil middleware")
		}
	}()

	var m *Middleware
	m.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
}

func TestPrincipalFromContextMissing(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Error("expected false for context without principal")
	}
	if _, ok := PrincipalFromContext(nil); ok {
		t.Error("expected false for nil context")
	}
}

func TestExtractors(t *testing.T) {
	tests := []struct {
		name    string
		header  map[string]string
		want    string
		wantErr error
	}{
		{name: "bearer", header: map[string]string{"Authorization": "Bearer abc"}, want: "abc"},
		{name: "bearer lowercase", header: map[string]string{"Authorization": "bearer abc"}, want: "abc"},
		{name: "api key header", header: map[string]string{HeaderAPIKey: " abc "}, want: "abc"},
		{name: "basic scheme", header: map[string]string{"Authorization": "Basic abc"}, wantErr: ErrKeyInvalid},
		{name: "empty bearer", header: map[string]string{"Authorization": "Bearer  "}, wantErr: ErrKeyInvalid},
		{name: "nothing", wantErr: ErrKeyNotFound},
	}
	extract := DefaultKeyExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			got, err := extract(req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("extract() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("extract() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}
