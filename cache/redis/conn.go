package redis

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

type dialFunc func(context.Context, Options) (net.Conn, error)

type conn struct {
	nc   net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer
	opts Options
	// broken marks a connection whose stream position is unknown.
	broken bool
}

func (c *conn) do(args ...string) (any, error) {
	if err := c.send(args...); err != nil {
		return nil, err
	}
	if err := c.flush(); err != nil {
		return nil, err
	}
	return c.receive()
}

func (c *conn) send(args ...string) error {
	if err := deadline(c.nc.SetWriteDeadline, c.opts.WriteTimeout); err != nil {
		c.broken = true
		return err
	}
	if err := writeCommand(c.bw, args...); err != nil {
		c.broken = true
		return err
	}
	return nil
}

func (c *conn) flush() error {
	if err := c.bw.Flush(); err != nil {
		c.broken = true
		return err
	}
	return nil
}

func (c *conn) receive() (any, error) {
	if err := deadline(c.nc.SetReadDeadline, c.opts.ReadTimeout); err != nil {
		c.broken = true
		return nil, err
	}
	reply, err := readReply(c.br)
	if err != nil {
		c.broken = true
		return nil, err
	}
	return reply, nil
}

func (c *conn) close() { _ = c.nc.Close() }

// pool keeps up to cap(idle) connections for reuse.
type pool struct {
	opts Options
	dial dialFunc
	idle chan *conn
}

func newPool(opts Options, dial dialFunc) *pool {
	return &pool{opts: opts, dial: dial, idle: make(chan *conn, opts.PoolSize)}
}

func (p *pool) get(ctx context.Context) (*conn, error) {
	select {
	case c := <-p.idle:
		return c, nil
	default:
	}

	nc, err := p.dial(ctx, p.opts)
	if err != nil {
		return nil, err
	}
	c := &conn{nc: nc, br: bufio.NewReader(nc), bw: bufio.NewWriter(nc), opts: p.opts}
	if err := p.handshake(c); err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

func (p *pool) put(c *conn) {
	if c == nil {
		return
	}
	if c.broken {
		c.close()
		return
	}
	select {
	case p.idle <- c:
	default:
		c.close()
	}
}

func (p *pool) close() {
	for {
		select {
		case c := <-p.idle:
			c.close()
		default:
			return
		}
	}
}

func (p *pool) handshake(c *conn) error {
	if p.opts.Password != "" {
		if err := expectOK(c.do("AUTH", p.opts.Password)); err != nil {
			return err
		}
	}
	if p.opts.DB > 0 {
		if err := expectOK(c.do("SELECT", strconv.Itoa(p.opts.DB))); err != nil {
			return err
		}
	}
	return nil
}

func expectOK(reply any, err error) error {
	if err != nil {
		return err
	}
	if err := replyErr(reply); err != nil {
		return err
	}
	if s, ok := reply.(string); ok && s == "OK" {
		return nil
	}
	return errors.New("redis: expected OK reply")
}

func defaultDial(ctx context.Context, opts Options) (net.Conn, error) {
	d := &net.Dialer{Timeout: opts.DialTimeout}
	return d.DialContext(ctx, "tcp", opts.Addr)
}

func deadline(set func(time.Time) error, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	return set(time.Now().Add(timeout))
}
