package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dmitriko/contactd/pkg/dbconn"
)

const (
	allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowHeaders = "Content-Type, Authorization, X-Requested-With, X-Request-Id"
	maxAge       = "600"
)

// logRequests logs one line per request.
func (g *Gateway) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		g.log.Info("request",
			zap.String("request_id", requestID(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
		)
	})
}

func (g *Gateway) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			g.log.Error("panic serving request",
				zap.String("request_id", requestID(r)),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			g.respondError(w, r, fmt.Errorf("panic: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}

// admit rejects browsers calling from an origin outside the policy and
// sets the credentialed CORS headers for everyone else.
func (g *Gateway) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.policy.Admit(r.Header.Get("Origin"))
		if !d.Allowed {
			g.log.Debug("origin rejected", zap.String("origin", d.Origin))
			WriteJSON(w, http.StatusForbidden, map[string]string{
				"error":  msgCORS,
				"origin": d.Origin,
			})
			return
		}
		if d.Origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", d.Origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}

// preflight answers OPTIONS on any path without touching the database.
func (g *Gateway) preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Max-Age", maxAge)
		w.WriteHeader(http.StatusNoContent)
	})
}

// parseBody reads and checks JSON bodies so routes only ever see valid JSON.
// Other content types pass through untouched.
func (g *Gateway) parseBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody || !isJSON(r.Header.Get("Content-Type")) {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				g.respondError(w, r, &BodyError{Status: http.StatusRequestEntityTooLarge, Err: err})
				return
			}
			g.respondError(w, r, &BodyError{Status: http.StatusBadRequest, Err: err})
			return
		}
		if len(bytes.TrimSpace(body)) == 0 {
			body = nil
		} else if !json.Valid(body) {
			g.respondError(w, r, &BodyError{Status: http.StatusBadRequest, Err: errors.New("malformed json")})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(withBody(r.Context(), body)))
	})
}

// requireDB makes sure the shared connection is ready and hands it to the
// route through the request context.
func (g *Gateway) requireDB(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.conns == nil {
			g.respondError(w, r, errors.New("no database configured"))
			return
		}
		conn, err := g.conns.Ensure(r.Context())
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(dbconn.NewContext(r.Context(), conn)))
	})
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}
