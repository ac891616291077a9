package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmitriko/contactd/pkg/app"
	"github.com/dmitriko/contactd/pkg/config"
	"github.com/dmitriko/contactd/pkg/logging"
	"github.com/dmitriko/contactd/pkg/store"
)

const shutdownTimeout = 5 * time.Second

var listenPort string
var envFile string

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "contactd",
		Short:         "Contact form backend",
		Long:          "Contact form backend. Without a sub-command the hosting mode is picked from the environment.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuto()
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(lambdaCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as a long-lived HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(true)
			if err != nil {
				return err
			}
			if listenPort != "" {
				a.Config.Port = listenPort
			}
			return serve(a)
		},
	}
	cmd.Flags().StringVar(&listenPort, "port", "", "port to listen on, default to $PORT or 5000")
	return cmd
}

func lambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run inside the AWS Lambda runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			a.LambdaHandler().Start()
			return nil
		},
	}
}

func runAuto() error {
	a, err := bootstrap(true)
	if err != nil {
		return err
	}
	switch mode := a.Config.ResolveMode(); mode {
	case config.ModeLambda:
		a.LambdaHandler().Start()
		return nil
	case config.ModeStandalone:
		return serve(a)
	default:
		return fmt.Errorf("mode %q is served by the platform entrypoint, not this binary", mode)
	}
}

func bootstrap(dotenv bool) (*app.App, error) {
	if dotenv {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return app.Build(cfg, log), nil
}

// serve connects eagerly, so a bad connection string or unreachable
// database stops the process before it accepts traffic.
func serve(a *app.App) error {
	log := a.Logger
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, a.Config.ConnectTimeout)
	_, err := a.Cache.Ensure(connectCtx)
	cancel()
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		return err
	}

	srv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("service", a.Config.ServiceName),
			zap.String("database", store.Redact(a.Config.DatabaseURI)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := a.Cache.Close(shutdownCtx); err != nil {
		log.Warn("closing database connection", zap.Error(err))
	}
	return nil
}
