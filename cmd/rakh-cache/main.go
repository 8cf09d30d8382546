// Command rakh-cache serves a bounded TTL cache over an admin HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/adeilh/rakh-cache/config"
	"github.com/adeilh/rakh-cache/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "rakh-cache:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string) error {
	cfg, err := config.Load(args, getenv)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	svc, err := newService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	log.Info("starting",
		zap.String("backend", string(cfg.Backend)),
		zap.Int("max_size", cfg.MaxSize),
		zap.Duration("ttl", cfg.TTL),
		zap.Stringer("eviction_policy", cfg.Policy),
		zap.Bool("auth", len(cfg.APIKeyHashes) > 0),
	)
	err = svc.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("shutdown complete")
		return nil
	}
	return err
}
