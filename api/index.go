// Package handler is the Vercel Go function entrypoint. vercel.json rewrites
// every path here, so the gateway sees the original request path.
package handler

import (
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/dmitriko/contactd/pkg/app"
)

var (
	once       sync.Once
	contactApp *app.App
	bootErr    error
)

func bootstrap() (*app.App, error) {
	once.Do(func() {
		contactApp, bootErr = app.Bootstrap()
		if bootErr == nil {
			contactApp.Logger.Info("cold start", zap.String("service", contactApp.Config.ServiceName))
		}
	})
	return contactApp, bootErr
}

// Handler serves every request of the deployment.
func Handler(w http.ResponseWriter, r *http.Request) {
	a, err := bootstrap()
	if err != nil {
		app.Unavailable(err).ServeHTTP(w, r)
		return
	}
	a.Handler.ServeHTTP(w, r)
}
