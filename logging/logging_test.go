package logging

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/adeilh/rakh-cache/cache/memory"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("ParseLevel(loud) expected error")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("verbose", false); err == nil {
		t.Fatalf("New() expected error")
	}
	log, err := New("debug", true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug level not enabled")
	}
}

func TestObserverLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	obs := NewObserver(zap.New(core))

	c, err := memory.New[int](memory.WithMaxSize(1), memory.WithObserver(obs))
	if err != nil {
		t.Fatalf("memory.New() error = %v", err)
	}
	_ = c.Set("a", 1)
	_ = c.Set("b", 2)
	c.Get("b")
	c.Clear()

	if n := logs.FilterMessage("evicted").FilterField(zap.String("key", "a")).Len(); n != 1 {
		t.Fatalf("eviction logs = %d, want 1", n)
	}
	for _, e := range logs.FilterMessage("evicted").All() {
		if e.Level != zapcore.WarnLevel {
			t.Fatalf("eviction logged at %v, want warn", e.Level)
		}
	}
	cleared := logs.FilterMessage("cleared").All()
	if len(cleared) != 1 || cleared[0].Level != zapcore.InfoLevel {
		t.Fatalf("unexpected clear logs: %+v", cleared)
	}
	if logs.FilterMessage("hit").Len() != 1 || logs.FilterMessage("set").Len() != 2 {
		t.Fatalf("unexpected debug logs: %+v", logs.All())
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })

	for _, path := range []string{"/ok", "/boom", "/missing"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.FilterMessage("request").All()
	if len(entries) != 3 {
		t.Fatalf("request logs = %d, want 3", len(entries))
	}
	want := []zapcore.Level{zapcore.InfoLevel, zapcore.ErrorLevel, zapcore.WarnLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Fatalf("entry %d level = %v, want %v", i, e.Level, want[i])
		}
	}
	if got := entries[1].ContextMap()["status"]; got != int64(500) {
		t.Fatalf("status field = %v, want 500", got)
	}
}
