package gateway

import (
	"context"
	"encoding/json"
	"net/http"
)

type bodyKey struct{}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON unmarshals the parsed request body into v. A request that
// carried no JSON body decodes as an empty object.
func DecodeJSON(r *http.Request, v interface{}) error {
	body, _ := r.Context().Value(bodyKey{}).([]byte)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &BodyError{Status: http.StatusBadRequest, Err: err}
	}
	return nil
}

func withBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, bodyKey{}, body)
}
