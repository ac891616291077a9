// Package serverless runs the HTTP gateway inside AWS Lambda. API Gateway
// REST (payload 1.0), HTTP API and Function URL (payload 2.0) events are
// translated to net/http requests; scheduled warmup events are answered
// without going through HTTP at all.
package serverless

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dmitriko/contactd/pkg/logging"
)

// Handler adapts an http.Handler to the Lambda runtime.
type Handler struct {
	next         http.Handler
	prewarm      func(ctx context.Context) error
	log          *zap.Logger
	functionName string
	warmupDelay  time.Duration

	invokerOnce sync.Once
	invoker     Invoker
	invokerErr  error
}

type Option func(*Handler)

// WithPrewarm sets what a warmup event does before answering, typically
// establishing the database connection.
func WithPrewarm(fn func(ctx context.Context) error) Option {
	return func(h *Handler) { h.prewarm = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.log = logging.OrNop(l) }
}

// WithInvoker replaces the Lambda API client used for warmup fan out.
func WithInvoker(inv Invoker) Option {
	return func(h *Handler) { h.invoker = inv }
}

// WithFunctionName overrides AWS_LAMBDA_FUNCTION_NAME.
func WithFunctionName(name string) Option {
	return func(h *Handler) { h.functionName = name }
}

func WithWarmupDelay(d time.Duration) Option {
	return func(h *Handler) { h.warmupDelay = d }
}

func NewHandler(next http.Handler, opts ...Option) *Handler {
	h := &Handler{
		next:         next,
		log:          zap.NewNop(),
		functionName: os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		warmupDelay:  WarmupDelay,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Invoke is the Lambda entrypoint. Warmup detection runs first.
func (h *Handler) Invoke(ctx context.Context, event json.RawMessage) (interface{}, error) {
	if w, ok := IsWarmupEvent(event); ok {
		return h.handleWarmup(ctx, w)
	}

	v2, err := isV2(event)
	if err != nil {
		return nil, err
	}
	if v2 {
		var e events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(event, &e); err != nil {
			return nil, errors.Wrap(err, "decode http api event")
		}
		req, err := requestV2(ctx, e)
		if err != nil {
			return nil, err
		}
		return responseV2(h.serve(req)), nil
	}

	var e events.APIGatewayProxyRequest
	if err := json.Unmarshal(event, &e); err != nil {
		return nil, errors.Wrap(err, "decode rest api event")
	}
	req, err := requestV1(ctx, e)
	if err != nil {
		return nil, err
	}
	return responseV1(h.serve(req)), nil
}

func (h *Handler) serve(req *http.Request) *recorder {
	rec := newRecorder()
	h.next.ServeHTTP(rec, req)
	return rec
}

// Start hands the handler to the Lambda runtime. It does not return.
func (h *Handler) Start() {
	lambda.Start(h.Invoke)
}
