// Package dbconn holds the process wide database connection. The connection
// is established lazily on first use, shared by every request of a process
// or warm function instance, and establishment is deduplicated so that
// concurrent callers during a cold start trigger a single dial.
package dbconn

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dmitriko/contactd/pkg/logging"
	"github.com/dmitriko/contactd/pkg/store"
)

const (
	URIVariable    = "DATABASE_URI"
	DefaultTimeout = 10 * time.Second

	flightKey = "conn"
)

// Dialer opens a connection. store.Open is the production dialer.
type Dialer func(ctx context.Context, uri string) (store.Conn, error)

// State is the lifecycle position of a Cache.
type State int

const (
	Empty State = iota
	Establishing
	Ready
)

func (s State) String() string {
	switch s {
	case Establishing:
		return "establishing"
	case Ready:
		return "ready"
	default:
		return "empty"
	}
}

type Options struct {
	URI     string
	Dial    Dialer
	Timeout time.Duration
	Logger  *zap.Logger
}

// Cache owns at most one live connection.
type Cache struct {
	uri     string
	dial    Dialer
	timeout time.Duration
	log     *zap.Logger

	group singleflight.Group

	mu       sync.RWMutex
	conn     store.Conn
	inflight bool
}

func New(opts Options) *Cache {
	c := &Cache{
		uri:     opts.URI,
		dial:    opts.Dial,
		timeout: opts.Timeout,
		log:     logging.OrNop(opts.Logger),
	}
	if c.dial == nil {
		c.dial = store.Open
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c
}

// Ensure returns the live connection, establishing it if needed.
//
// Callers arriving while an attempt is in flight wait for that attempt and
// share its outcome. A failed attempt is not remembered: the next call dials
// again. A caller whose ctx ends stops waiting, the attempt itself continues
// for the others.
func (c *Cache) Ensure(ctx context.Context) (store.Conn, error) {
	if conn := c.current(); conn != nil {
		return conn, nil
	}
	if c.uri == "" {
		return nil, &ConfigurationError{Variable: URIVariable}
	}

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return c.establish(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(store.Conn), nil
	case <-ctx.Done():
		return nil, &ConnectionError{Err: ctx.Err()}
	}
}

func (c *Cache) establish(ctx context.Context) (store.Conn, error) {
	c.mu.Lock()
	if c.conn != nil {
		// an earlier flight finished between the fast path and DoChan
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.inflight = true
	c.mu.Unlock()

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := time.Now()
	conn, err := c.dial(dctx, c.uri)

	c.mu.Lock()
	c.inflight = false
	if err == nil {
		c.conn = conn
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("database connection failed",
			zap.String("uri", store.Redact(c.uri)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, &ConnectionError{Err: err}
	}
	c.log.Info("database connected",
		zap.String("backend", conn.Backend()),
		zap.String("uri", store.Redact(c.uri)),
		zap.Duration("elapsed", time.Since(start)))
	return conn, nil
}

func (c *Cache) current() store.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.conn != nil:
		return Ready
	case c.inflight:
		return Establishing
	default:
		return Empty
	}
}

// Close releases the live connection, if any, and returns the cache to
// Empty. Only the standalone server calls it, on shutdown.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}
