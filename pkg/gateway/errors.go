package gateway

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

const (
	msgInternal   = "Internal server error"
	msgNotFound   = "Not found"
	msgBadJSON    = "Invalid JSON body"
	msgTooLarge   = "Request body too large"
	msgValidation = "Validation failed"
	msgCORS       = "CORS: origin not allowed"
)

// BodyError is a request body the gateway could not accept.
type BodyError struct {
	Status int
	Err    error
}

func (e *BodyError) Error() string {
	if e.Status == http.StatusRequestEntityTooLarge {
		return msgTooLarge
	}
	return msgBadJSON
}

func (e *BodyError) Unwrap() error { return e.Err }

// ValidationError maps field names to problems. It is answered with 400.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return msgValidation }

// HTTPError lets a route pick its own status and public message.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error { return e.Err }

// respondError is the single place errors turn into responses. Anything it
// does not recognise becomes a 500 without internals, unless details are
// exposed by configuration.
func (g *Gateway) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bodyErr  *BodyError
		validErr *ValidationError
		httpErr  *HTTPError
	)
	log := g.log.With(zap.String("request_id", requestID(r)), zap.String("path", r.URL.Path))

	switch {
	case errors.As(err, &validErr):
		WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  msgValidation,
			"fields": validErr.Fields,
		})
	case errors.As(err, &bodyErr):
		log.Debug("rejected request body", zap.Error(err))
		WriteJSON(w, bodyErr.Status, map[string]string{"error": bodyErr.Error()})
	case errors.As(err, &httpErr) && httpErr.Status < http.StatusInternalServerError:
		WriteJSON(w, httpErr.Status, map[string]string{"error": httpErr.Message})
	default:
		log.Error("request failed", zap.Error(err))
		body := map[string]string{"error": msgInternal}
		if g.exposeDetails {
			body["details"] = err.Error()
		}
		WriteJSON(w, http.StatusInternalServerError, body)
	}
}
