// Package rediscontainer runs a throwaway Redis in Docker for integration
// tests.
package rediscontainer

import (
	"bufio"
	"net"
	"strings"
	"time"

	"github.com/adeilh/rakh-cache/internal/testutil/dockertest"
)

const hostPort = "6390"

var container = &dockertest.Container{
	Dockerfile:    "Dockerfile.redis.test",
	Image:         "rakh-cache-redis-test",
	Name:          "rakh-cache-redis-test",
	HostPort:      hostPort,
	ContainerPort: "6379",
	Ready:         func() bool { return ping(Addr()) },
	ReadyTimeout:  5 * time.Second,
}

// Addr exposes the Redis host:port used by integration tests.
func Addr() string { return "127.0.0.1:" + hostPort }

// Setup builds the image, runs the container and waits for PONG.
func Setup() error { return container.Start() }

// Teardown stops the container if Setup started it.
func Teardown() error { return container.Stop() }

func ping(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := conn.Write([]byte("*1\r\n$4\r\nPING\r\n")); err != nil {
		return false
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && strings.HasPrefix(line, "+PONG")
}
