// Package postgrescontainer runs a throwaway PostgreSQL in Docker for
// integration tests.
package postgrescontainer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adeilh/rakh-cache/internal/testutil/dockertest"
	_ "github.com/lib/pq"
)

const (
	hostPort = "55432"
	user     = "rakh"
	password = "secret"
	dbName   = "rakh_test"
)

var container = &dockertest.Container{
	Dockerfile:    "Dockerfile.postgres.test",
	Image:         "rakh-cache-postgres-test",
	Name:          "rakh-cache-postgres-test",
	HostPort:      hostPort,
	ContainerPort: "5432",
	Ready:         ready,
	ReadyTimeout:  15 * time.Second,
}

// Addr returns host:port for connecting to the test Postgres instance.
func Addr() string { return "127.0.0.1:" + hostPort }

// DSN returns a lib/pq formatted connection string.
func DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, Addr(), dbName)
}

// Setup builds and launches the container and waits until it accepts
// connections.
func Setup() error { return container.Start() }

// Teardown stops the container launched by Setup.
func Teardown() error { return container.Stop() }

func ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	db, err := sql.Open("postgres", DSN())
	if err != nil {
		return false
	}
	defer db.Close()
	return db.PingContext(ctx) == nil
}
