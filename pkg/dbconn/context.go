package dbconn

import (
	"context"

	"github.com/dmitriko/contactd/pkg/store"
)

type ctxKey struct{}

// NewContext returns a copy of ctx carrying conn.
func NewContext(ctx context.Context, conn store.Conn) context.Context {
	return context.WithValue(ctx, ctxKey{}, conn)
}

// FromContext returns the connection stored by NewContext.
func FromContext(ctx context.Context) (store.Conn, bool) {
	conn, ok := ctx.Value(ctxKey{}).(store.Conn)
	return conn, ok && conn != nil
}
