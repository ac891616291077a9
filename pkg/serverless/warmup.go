package serverless

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	lambdasdk "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// WarmupSource identifies warmup events sent by a scheduled rule.
	WarmupSource = "warmup"

	// WarmupDelay keeps this instance busy long enough for the
	// self-invocations to land on other instances.
	WarmupDelay = 75 * time.Millisecond

	// MaxWarmupConcurrency caps the fan out a single event can ask for.
	MaxWarmupConcurrency = 50

	// invokeParallelism bounds in-flight self-invocations.
	invokeParallelism = 10
)

// WarmupEvent is the payload of a scheduled warmup rule.
type WarmupEvent struct {
	Source      string `json:"source"`
	Concurrency int    `json:"concurrency"`
}

type WarmupResponse struct {
	Status          string `json:"status"`
	InstancesWarmed int    `json:"instancesWarmed"`
	Database        string `json:"database"`
}

// Invoker is the part of the Lambda API used for self-invocation.
type Invoker interface {
	Invoke(ctx context.Context, in *lambdasdk.InvokeInput, optFns ...func(*lambdasdk.Options)) (*lambdasdk.InvokeOutput, error)
}

// IsWarmupEvent reports whether event is a warmup ping.
func IsWarmupEvent(event json.RawMessage) (*WarmupEvent, bool) {
	var w WarmupEvent
	if err := json.Unmarshal(event, &w); err != nil {
		return nil, false
	}
	if w.Source != WarmupSource {
		return nil, false
	}
	if w.Concurrency < 0 {
		w.Concurrency = 0
	}
	if w.Concurrency > MaxWarmupConcurrency {
		w.Concurrency = MaxWarmupConcurrency
	}
	return &w, true
}

// handleWarmup establishes the database connection so the next real request
// finds it ready, then fans out to keep more instances warm.
func (h *Handler) handleWarmup(ctx context.Context, w *WarmupEvent) (WarmupResponse, error) {
	resp := WarmupResponse{Status: "warm", InstancesWarmed: 1, Database: "skipped"}

	if h.prewarm != nil {
		if err := h.prewarm(ctx); err != nil {
			h.log.Warn("warmup could not connect to database", zap.Error(err))
			resp.Database = "unavailable"
		} else {
			resp.Database = "ready"
		}
	}

	if w.Concurrency > 0 && h.functionName != "" {
		if err := h.selfInvoke(ctx, w.Concurrency); err != nil {
			h.log.Warn("warmup self-invoke failed", zap.Error(err))
		} else {
			resp.InstancesWarmed += w.Concurrency
		}
	}

	if h.warmupDelay > 0 {
		t := time.NewTimer(h.warmupDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return resp, nil
}

// selfInvoke invokes this function count times asynchronously. Children get
// concurrency 0 so they do not fan out again.
func (h *Handler) selfInvoke(ctx context.Context, count int) error {
	client, err := h.lambdaClient(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(WarmupEvent{Source: WarmupSource})
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(invokeParallelism)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			_, err := client.Invoke(ctx, &lambdasdk.InvokeInput{
				FunctionName:   aws.String(h.functionName),
				InvocationType: types.InvocationTypeEvent,
				Payload:        payload,
			})
			return err
		})
	}
	return g.Wait()
}

func (h *Handler) lambdaClient(ctx context.Context) (Invoker, error) {
	h.invokerOnce.Do(func() {
		if h.invoker != nil {
			return
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			h.invokerErr = err
			return
		}
		h.invoker = lambdasdk.NewFromConfig(cfg)
	})
	return h.invoker, h.invokerErr
}
