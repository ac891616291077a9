package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadConfigAnswersJSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	h := newHandler()
	out, err := h.Invoke(context.Background(), json.RawMessage(
		`{"version":"2.0","rawPath":"/api/contact","requestContext":{"http":{"method":"POST"}}}`))
	require.NoError(t, err)
	resp := out.(events.APIGatewayV2HTTPResponse)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Internal server error"}`, resp.Body)
}

func TestHandlerServesPing(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATABASE_URI", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	out, err := newHandler().Invoke(context.Background(), json.RawMessage(
		`{"version":"2.0","rawPath":"/api/ping","requestContext":{"http":{"method":"GET"}}}`))
	require.NoError(t, err)
	resp := out.(events.APIGatewayV2HTTPResponse)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, resp.Body)
}
