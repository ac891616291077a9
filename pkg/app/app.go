// Package app wires configuration into a ready to serve http.Handler. The
// standalone server, the Lambda function and the Vercel function all start
// from Build and differ only in how they feed requests to it.
package app

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/dmitriko/contactd/pkg/config"
	"github.com/dmitriko/contactd/pkg/contact"
	"github.com/dmitriko/contactd/pkg/cors"
	"github.com/dmitriko/contactd/pkg/dbconn"
	"github.com/dmitriko/contactd/pkg/gateway"
	"github.com/dmitriko/contactd/pkg/logging"
	"github.com/dmitriko/contactd/pkg/serverless"
)

type App struct {
	Config  *config.Config
	Handler http.Handler
	Cache   *dbconn.Cache
	Logger  *zap.Logger
}

type buildOptions struct {
	dial dbconn.Dialer
}

type Option func(*buildOptions)

// WithDialer replaces store.Open, for tests.
func WithDialer(d dbconn.Dialer) Option {
	return func(o *buildOptions) { o.dial = d }
}

// Build performs no I/O; the database is dialed on first use.
func Build(cfg *config.Config, log *zap.Logger, opts ...Option) *App {
	bo := buildOptions{}
	for _, o := range opts {
		o(&bo)
	}
	log = logging.OrNop(log)

	cache := dbconn.New(dbconn.Options{
		URI:     cfg.DatabaseURI,
		Dial:    bo.dial,
		Timeout: cfg.ConnectTimeout,
		Logger:  log.Named("db"),
	})
	gw := gateway.New(gateway.Options{
		Policy:             cors.NewPolicy(cfg.AllowedOrigins, cfg.AllowedSuffix),
		Conns:              cache,
		Logger:             log.Named("http"),
		ServiceName:        cfg.ServiceName,
		Routes:             contact.NewHandler(log.Named("contact")).Routes(),
		MaxBodyBytes:       cfg.MaxBodyBytes,
		ExposeErrorDetails: cfg.ExposeErrorDetails,
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
	})
	return &App{Config: cfg, Handler: gw, Cache: cache, Logger: log}
}

// Bootstrap loads configuration from the environment and builds the app.
func Bootstrap() (*App, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return Build(cfg, log), nil
}

// Unavailable answers every request with the generic 500 body. Platform
// entrypoints serve it when Bootstrap fails so clients still get JSON.
func Unavailable(cause error) http.Handler {
	log, err := logging.New("error", "json")
	if err != nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Error("service not configured", zap.Error(cause), zap.String("path", r.URL.Path))
		gateway.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	})
}

// LambdaHandler returns the Lambda adapter. Warmup events establish the
// database connection ahead of real traffic.
func (a *App) LambdaHandler(opts ...serverless.Option) *serverless.Handler {
	base := []serverless.Option{
		serverless.WithLogger(a.Logger.Named("lambda")),
		serverless.WithPrewarm(func(ctx context.Context) error {
			_, err := a.Cache.Ensure(ctx)
			return err
		}),
	}
	if a.Config.FunctionName != "" {
		base = append(base, serverless.WithFunctionName(a.Config.FunctionName))
	}
	return serverless.NewHandler(a.Handler, append(base, opts...)...)
}
