// Package dockertest builds and runs single-container fixtures from a
// Dockerfile at the repository root.
package dockertest

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Container describes one image built from Dockerfile and published on
// HostPort.
type Container struct {
	Dockerfile    string
	Image         string
	Name          string
	HostPort      string
	ContainerPort string
	// Ready polls the running container; Start waits until it returns true.
	Ready        func() bool
	ReadyTimeout time.Duration

	mu      sync.Mutex
	tried   bool
	started bool
	err     error
}

// Start builds and runs the container once; later calls return the first
// result.
func (c *Container) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tried {
		return c.err
	}
	c.tried = true
	c.err = c.start()
	c.started = c.err == nil
	return c.err
}

// Stop stops the container if Start launched it.
func (c *Container) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	return c.stop()
}

func (c *Container) start() error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker executable not found: %w", err)
	}
	_ = c.stop()
	root := RepoRoot()
	if err := run("build", "-f", filepath.Join(root, c.Dockerfile), "-t", c.Image, root); err != nil {
		return err
	}
	if err := run("run", "-d", "--rm", "--name", c.Name, "-p", c.HostPort+":"+c.ContainerPort, c.Image); err != nil {
		return err
	}
	if c.Ready == nil {
		return nil
	}
	timeout := c.ReadyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	until := time.Now().Add(timeout)
	for time.Now().Before(until) {
		if c.Ready() {
			return nil
		}
		time.Sleep(150 * time.Millisecond)
	}
	return errors.New(c.Name + " did not become ready in time")
}

func (c *Container) stop() error {
	cmd := exec.Command("docker", "stop", c.Name)
	cmd.Dir = RepoRoot()
	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "No such container") {
			return nil
		}
		return fmt.Errorf("docker stop failed: %w: %s", err, output)
	}
	return nil
}

func run(args ...string) error {
	cmd := exec.Command("docker", args...)
	cmd.Dir = RepoRoot()
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("docker %s failed: %w: %s", args[0], err, output)
	}
	return nil
}

// RepoRoot returns the module root directory.
func RepoRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", ".."))
}
