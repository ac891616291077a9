// Package gateway is the HTTP entrypoint of the service. Every request goes
// through origin admission, preflight short-circuit, JSON body parsing and,
// for business routes under /api, the database readiness gate before it is
// dispatched. Errors from any stage end up in one JSON error responder.
package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dmitriko/contactd/pkg/cors"
	"github.com/dmitriko/contactd/pkg/logging"
	"github.com/dmitriko/contactd/pkg/store"
)

const DefaultMaxBodyBytes = 100 << 10

// HandlerFunc is a route handler that reports failures by returning them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Route is a business route mounted under /api behind the database gate.
// Pattern is relative to /api.
type Route struct {
	Method  string
	Pattern string
	Handler HandlerFunc
}

// ConnProvider hands out the shared database connection.
type ConnProvider interface {
	Ensure(ctx context.Context) (store.Conn, error)
}

type Options struct {
	Policy      cors.Policy
	Conns       ConnProvider
	Logger      *zap.Logger
	ServiceName string
	Routes      []Route

	MaxBodyBytes       int64
	ExposeErrorDetails bool

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Only set it behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// Gateway implements http.Handler.
type Gateway struct {
	policy        cors.Policy
	conns         ConnProvider
	log           *zap.Logger
	service       string
	maxBody       int64
	exposeDetails bool

	mux *chi.Mux
}

func New(opts Options) *Gateway {
	g := &Gateway{
		policy:        opts.Policy,
		conns:         opts.Conns,
		log:           logging.OrNop(opts.Logger),
		service:       opts.ServiceName,
		maxBody:       opts.MaxBodyBytes,
		exposeDetails: opts.ExposeErrorDetails,
	}
	if g.maxBody <= 0 {
		g.maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(g.logRequests)
	r.Use(g.recoverPanics)
	r.Use(g.admit)
	r.Use(g.preflight)
	r.Use(g.parseBody)

	r.NotFound(g.handle(notFound))
	r.MethodNotAllowed(g.handle(notFound))
	r.Get("/", g.handle(g.health))
	r.Head("/", g.handle(g.health))

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", g.handle(ping))
		r.Head("/ping", g.handle(ping))
		r.NotFound(g.requireDB(g.handle(notFound)).ServeHTTP)
		r.MethodNotAllowed(g.requireDB(g.handle(notFound)).ServeHTTP)
		r.Group(func(r chi.Router) {
			r.Use(g.requireDB)
			for _, rt := range opts.Routes {
				r.Method(rt.Method, rt.Pattern, g.handle(rt.Handler))
			}
		})
	})

	g.mux = r
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

// handle adapts a HandlerFunc, sending its error to the responder.
func (g *Gateway) handle(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			g.respondError(w, r, err)
		}
	}
}

func (g *Gateway) health(w http.ResponseWriter, r *http.Request) error {
	WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "service": g.service})
	return nil
}

func ping(w http.ResponseWriter, r *http.Request) error {
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}

func notFound(w http.ResponseWriter, r *http.Request) error {
	return &HTTPError{Status: http.StatusNotFound, Message: msgNotFound}
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
