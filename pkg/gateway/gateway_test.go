package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dmitriko/contactd/pkg/cors"
	"github.com/dmitriko/contactd/pkg/dbconn"
	"github.com/dmitriko/contactd/pkg/store/storetest"
)

const (
	allowedOrigin = "https://devkron-frontend.vercel.app"
	evilOrigin    = "https://evil.example"
)

type fixture struct {
	gw     *Gateway
	dialer *storetest.Dialer
	mem    *storetest.Memory
}

func newFixture(t *testing.T, uri string, dialErrs []error, opts Options) *fixture {
	t.Helper()
	mem := storetest.NewMemory()
	d := &storetest.Dialer{Conn: mem, Errs: dialErrs}
	opts.Conns = dbconn.New(dbconn.Options{URI: uri, Dial: d.Dial})
	opts.Policy = cors.NewPolicy([]string{allowedOrigin}, "")
	if opts.ServiceName == "" {
		opts.ServiceName = "devkron-backend"
	}
	return &fixture{gw: New(opts), dialer: d, mem: mem}
}

func (f *fixture) do(method, path, origin, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	f.gw.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func echoRoute() Route {
	return Route{Method: http.MethodPost, Pattern: "/echo", Handler: func(w http.ResponseWriter, r *http.Request) error {
		conn, ok := dbconn.FromContext(r.Context())
		if !ok {
			return errors.New("no connection")
		}
		var in map[string]interface{}
		if err := DecodeJSON(r, &in); err != nil {
			return err
		}
		in["backend"] = conn.Backend()
		WriteJSON(w, http.StatusOK, in)
		return nil
	}}
}

func TestHealthRoutesSkipDatabase(t *testing.T) {
	f := newFixture(t, "", nil, Options{})

	rec := f.do(http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"ok": true, "service": "devkron-backend"}, decode(t, rec))

	rec = f.do(http.MethodGet, "/api/ping", allowedOrigin, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"ok": true}, decode(t, rec))
	assert.Equal(t, allowedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	assert.Equal(t, 0, f.dialer.Calls())
}

func TestHealthWithUnreachableDatabase(t *testing.T) {
	f := newFixture(t, "mongodb://down/contactd", []error{errors.New("down"), errors.New("down")}, Options{})
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/ping", "", "").Code)
	assert.Equal(t, 0, f.dialer.Calls())
}

func TestHeadOnHealthRoutes(t *testing.T) {
	f := newFixture(t, "mongodb://down/contactd", []error{errors.New("down"), errors.New("down")}, Options{})

	for _, path := range []string{"/", "/api/ping"} {
		rec := f.do(http.MethodHead, path, allowedOrigin, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, allowedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	}
	assert.Equal(t, 0, f.dialer.Calls())
}

func TestPreflight(t *testing.T) {
	f := newFixture(t, "mongodb://db/contactd", nil, Options{Routes: []Route{echoRoute()}})

	for _, path := range []string{"/api/echo", "/api/anything", "/"} {
		rec := f.do(http.MethodOptions, path, allowedOrigin, "")
		assert.Equal(t, http.StatusNoContent, rec.Code, path)
		assert.Empty(t, rec.Body.String())
		h := rec.Header()
		assert.Equal(t, allowedOrigin, h.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", h.Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, h.Get("Access-Control-Allow-Methods"), "POST")
		assert.Contains(t, h.Get("Access-Control-Allow-Headers"), "Content-Type")
	}
	assert.Equal(t, 0, f.dialer.Calls())
}

func TestRejectedOrigin(t *testing.T) {
	f := newFixture(t, "mongodb://db/contactd", nil, Options{Routes: []Route{echoRoute()}})

	for _, method := range []string{http.MethodPost, http.MethodOptions} {
		rec := f.do(method, "/api/echo", evilOrigin, `{"a":1}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, map[string]interface{}{
			"error":  "CORS: origin not allowed",
			"origin": evilOrigin,
		}, decode(t, rec))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	}
	assert.Equal(t, 0, f.dialer.Calls())
}

func TestAllowedOriginReachesRoute(t *testing.T) {
	f := newFixture(t, "mongodb://db/contactd", nil, Options{Routes: []Route{echoRoute()}})

	rec := f.do(http.MethodPost, "/api/echo", allowedOrigin, `{"a":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]interface{}{"a": float64(1), "backend": "memory"}, decode(t, rec))
	assert.Equal(t, allowedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodPost, "/api/echo", "", `{"b":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, 1, f.dialer.Calls())
}

func TestMissingDatabaseURI(t *testing.T) {
	f := newFixture(t, "", nil, Options{Routes: []Route{echoRoute()}})

	rec := f.do(http.MethodPost, "/api/echo", allowedOrigin, `{"a":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]interface{}{"error": "Internal server error"}, decode(t, rec))
	assert.Equal(t, 0, f.dialer.Calls())
}

func TestDatabaseFailureIsRetried(t *testing.T) {
	f := newFixture(t, "mongodb://db/contactd", []error{errors.New("auth failed")},
		Options{Routes: []Route{echoRoute()}, ExposeErrorDetails: true})

	rec := f.do(http.MethodPost, "/api/echo", "", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Internal server error", body["error"])
	assert.Contains(t, body["details"], "auth failed")

	rec = f.do(http.MethodPost, "/api/echo", "", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, f.dialer.Calls())
}

func TestBodyErrors(t *testing.T) {
	f := newFixture(t, "mongodb://db/contactd", nil, Options{Routes: []Route{echoRoute()}, MaxBodyBytes: 16})

	rec := f.do(http.MethodPost, "/api/echo", "", `{"a":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]interface{}{"error": "Invalid JSON body"}, decode(t, rec))

	rec = f.do(http.MethodPost, "/api/echo", "", `{"a":"`+strings.Repeat("x", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, map[string]interface{}{"error": "Request body too large"}, decode(t, rec))

	// malformed bodies never reach the database gate
	assert.Equal(t, 0, f.dialer.Calls())

	rec = f.do(http.MethodPost, "/api/echo", "", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, "mongodb://db/contactd", nil, Options{Routes: []Route{echoRoute()}})

	rec := f.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]interface{}{"error": "Not found"}, decode(t, rec))
	assert.Equal(t, 0, f.dialer.Calls())

	rec = f.do(http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, f.dialer.Calls())

	rec = f.do(http.MethodGet, "/api/echo", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouteErrorsAndPanics(t *testing.T) {
	routes := []Route{
		{Method: http.MethodGet, Pattern: "/fail", Handler: func(w http.ResponseWriter, r *http.Request) error {
			return errors.New("secret internals")
		}},
		{Method: http.MethodGet, Pattern: "/panic", Handler: func(w http.ResponseWriter, r *http.Request) error {
			panic("boom")
		}},
		{Method: http.MethodGet, Pattern: "/invalid", Handler: func(w http.ResponseWriter, r *http.Request) error {
			return &ValidationError{Fields: map[string]string{"email": "is required"}}
		}},
		{Method: http.MethodGet, Pattern: "/gone", Handler: func(w http.ResponseWriter, r *http.Request) error {
			return &HTTPError{Status: http.StatusGone, Message: "Gone"}
		}},
	}
	f := newFixture(t, "mongodb://db/contactd", nil, Options{Routes: routes})

	rec := f.do(http.MethodGet, "/api/fail", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]interface{}{"error": "Internal server error"}, decode(t, rec))

	rec = f.do(http.MethodGet, "/api/panic", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]interface{}{"error": "Internal server error"}, decode(t, rec))

	rec = f.do(http.MethodGet, "/api/invalid", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]interface{}{
		"error":  "Validation failed",
		"fields": map[string]interface{}{"email": "is required"},
	}, decode(t, rec))

	rec = f.do(http.MethodGet, "/api/gone", "", "")
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, map[string]interface{}{"error": "Gone"}, decode(t, rec))
}

func TestRequestsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, "", nil, Options{Logger: zap.New(core)})

	f.do(http.MethodGet, "/api/ping", allowedOrigin, "")
	f.do(http.MethodGet, "/api/ping", evilOrigin, "")

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, "/api/ping", first["path"])
	assert.Equal(t, int64(http.StatusOK), first["status"])
	assert.NotEmpty(t, first["request_id"])
	assert.Equal(t, int64(http.StatusForbidden), entries[1].ContextMap()["status"])
}

func TestIsJSON(t *testing.T) {
	assert.True(t, isJSON("application/json"))
	assert.True(t, isJSON("Application/JSON; charset=utf-8"))
	assert.True(t, isJSON("application/merge-patch+json"))
	assert.False(t, isJSON("text/plain"))
	assert.False(t, isJSON(""))
}

func remoteRoute() Route {
	return Route{Method: http.MethodGet, Pattern: "/remote", Handler: func(w http.ResponseWriter, r *http.Request) error {
		WriteJSON(w, http.StatusOK, map[string]string{"remote": r.RemoteAddr})
		return nil
	}}
}

func TestProxyHeadersIgnoredByDefault(t *testing.T) {
	f := newFixture(t, "mongodb://db/contactd", nil, Options{Routes: []Route{remoteRoute()}})

	req := httptest.NewRequest(http.MethodGet, "/api/remote", nil)
	req.RemoteAddr = "203.0.113.7:4711"
	req.Header.Set("X-Forwarded-For", "10.9.9.9")
	req.Header.Set("X-Real-IP", "10.9.9.9")
	rec := httptest.NewRecorder()
	f.gw.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "203.0.113.7:4711", decode(t, rec)["remote"])
}

func TestProxyHeadersTrusted(t *testing.T) {
	f := newFixture(t, "mongodb://db/contactd", nil,
		Options{Routes: []Route{remoteRoute()}, TrustProxyHeaders: true})

	req := httptest.NewRequest(http.MethodGet, "/api/remote", nil)
	req.RemoteAddr = "203.0.113.7:4711"
	req.Header.Set("X-Real-IP", "198.51.100.2")
	rec := httptest.NewRecorder()
	f.gw.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "198.51.100.2", decode(t, rec)["remote"])
}
