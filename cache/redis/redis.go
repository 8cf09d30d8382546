// Package redis implements cache.Store on top of a Redis server using a
// small pooled RESP client.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adeilh/rakh-cache/cache"
)

// Store implements cache.Store and cache.Clearer against Redis.
type Store struct {
	opts Options
	pool *pool
}

var (
	_ cache.Store     = (*Store)(nil)
	_ cache.Clearer   = (*Store)(nil)
	_ cache.TTLGetter = (*Store)(nil)
)

// NewStore builds a Redis-backed cache store. Connections are dialled lazily.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	return &Store{opts: cfg, pool: newPool(cfg, defaultDial)}
}

// WithDial overrides the dialer (useful for tests/mocks).
func (s *Store) WithDial(fn dialFunc) {
	if fn != nil {
		s.pool.dial = fn
	}
}

// Close drops idle connections.
func (s *Store) Close() error {
	s.pool.close()
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}
	reply, err := s.do(ctx, "GET", s.key(key))
	if err != nil {
		return nil, err
	}
	switch v := reply.(type) {
	case nil:
		return nil, cache.ErrNotFound
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("redis: unexpected GET reply %T", reply)
	}
}

// GetWithTTL reads the value and its PTTL in one round trip. Keys without
// an expiry report 0.
func (s *Store) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, 0, err
	}
	p, err := s.Pipeline(ctx)
	if err != nil {
		return nil, 0, err
	}
	p.Queue("GET", s.key(key))
	p.Queue("PTTL", s.key(key))
	replies, err := p.Exec(ctx)
	if err != nil {
		return nil, 0, err
	}
	for _, r := range replies {
		if err := replyErr(r); err != nil {
			return nil, 0, err
		}
	}

	var value []byte
	switch v := replies[0].(type) {
	case nil:
		return nil, 0, cache.ErrNotFound
	case []byte:
		value = v
	default:
		return nil, 0, fmt.Errorf("redis: unexpected GET reply %T", replies[0])
	}
	ms, ok := replies[1].(int64)
	if !ok {
		return nil, 0, fmt.Errorf("redis: unexpected PTTL reply %T", replies[1])
	}
	switch {
	case ms == -2:
		// expired between GET and PTTL
		return nil, 0, cache.ErrNotFound
	case ms < 0:
		return value, 0, nil
	default:
		return value, time.Duration(ms) * time.Millisecond, nil
	}
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	args := []string{"SET", s.key(key), string(value)}
	if ttl > 0 {
		ms := ttl.Milliseconds()
		if ms == 0 {
			ms = 1
		}
		args = append(args, "PX", strconv.FormatInt(ms, 10))
	}
	return expectOK(s.do(ctx, args...))
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	reply, err := s.do(ctx, "DEL", s.key(key))
	if err != nil {
		return err
	}
	n, ok := reply.(int64)
	if !ok {
		return fmt.Errorf("redis: unexpected DEL reply %T", reply)
	}
	if n == 0 {
		return cache.ErrNotFound
	}
	return nil
}

// Clear removes every key under the configured prefix, or flushes the
// selected database when no prefix is set.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.opts.KeyPrefix == "" {
		return expectOK(s.do(ctx, "FLUSHDB"))
	}

	cursor := "0"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		reply, err := s.do(ctx, "SCAN", cursor, "MATCH", s.opts.KeyPrefix+"*", "COUNT", strconv.Itoa(s.opts.ScanCount))
		if err != nil {
			return err
		}
		next, keys, err := parseScan(reply)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			args := append([]string{"DEL"}, keys...)
			if _, err := s.do(ctx, args...); err != nil {
				return err
			}
		}
		if next == "0" {
			return nil
		}
		cursor = next
	}
}

// Ping checks that the server answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	reply, err := s.do(ctx, "PING")
	if err != nil {
		return err
	}
	if v, ok := reply.(string); !ok || v != "PONG" {
		return fmt.Errorf("redis: unexpected PING reply %v", reply)
	}
	return nil
}

func (s *Store) do(ctx context.Context, args ...string) (any, error) {
	c, err := s.pool.get(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(c)

	reply, err := c.do(args...)
	if err != nil {
		return nil, err
	}
	if err := replyErr(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (s *Store) check(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return cache.ValidateKey(key)
}

func (s *Store) key(k string) string { return s.opts.KeyPrefix + k }

func parseScan(reply any) (string, []string, error) {
	parts, ok := reply.([]any)
	if !ok || len(parts) != 2 {
		return "", nil, errors.New("redis: malformed SCAN reply")
	}
	cursor, ok := parts[0].([]byte)
	if !ok {
		return "", nil, errors.New("redis: malformed SCAN cursor")
	}
	raw, ok := parts[1].([]any)
	if !ok {
		return "", nil, errors.New("redis: malformed SCAN keys")
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if b, ok := k.([]byte); ok {
			keys = append(keys, string(b))
		}
	}
	return string(cursor), keys, nil
}

// Pipeline holds a dedicated connection and batches commands, reading all
// replies at once on Exec.
type Pipeline struct {
	store *Store
	conn  *conn
	cmds  [][]string

	mu     sync.Mutex
	closed bool
}

// Pipeline acquires a connection for batched commands. Keys passed to Queue
// are sent verbatim, without the store prefix.
func (s *Store) Pipeline(ctx context.Context) (*Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.pool.get(ctx)
	if err != nil {
		return nil, err
	}
	return &Pipeline{store: s, conn: c}, nil
}

// Queue appends a command to the pipeline.
func (p *Pipeline) Queue(args ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.cmds = append(p.cmds, append([]string(nil), args...))
}

// Exec sends all queued commands and returns their replies in order. Error
// replies are returned in place as Error values. The pipeline is closed
// afterwards.
func (p *Pipeline) Exec(ctx context.Context) ([]any, error) {
	p.mu.Lock()
	closed, cmds := p.closed, p.cmds
	p.mu.Unlock()
	if closed {
		return nil, errors.New("redis: pipeline closed")
	}
	defer p.Close()
	if len(cmds) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, cmd := range cmds {
		if err := p.conn.send(cmd...); err != nil {
			return nil, err
		}
	}
	if err := p.conn.flush(); err != nil {
		return nil, err
	}
	replies := make([]any, 0, len(cmds))
	for range cmds {
		reply, err := p.conn.receive()
		if err != nil {
			return nil, err
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// Close releases the connection without executing queued commands.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.store.pool.put(p.conn)
}
