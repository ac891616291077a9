package storetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dmitriko/contactd/pkg/store"
)

// Dialer counts dials and returns a scripted outcome.
type Dialer struct {
	Conn store.Conn
	// Errs are returned by successive dials before Conn is handed out.
	Errs []error
	// Gate, when set, blocks every dial until it is closed.
	Gate chan struct{}

	calls int64
	mu    sync.Mutex
}

func (d *Dialer) Dial(ctx context.Context, uri string) (store.Conn, error) {
	n := atomic.AddInt64(&d.calls, 1)
	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(n) <= len(d.Errs) {
		return nil, d.Errs[n-1]
	}
	return d.Conn, nil
}

// Calls returns how many times Dial ran.
func (d *Dialer) Calls() int {
	return int(atomic.LoadInt64(&d.calls))
}
