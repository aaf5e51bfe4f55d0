package observer

import (
	"context"
	"time"

	anuris "github.com/anuris-ai/anuris"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedClient wraps an anuris.CompletionClient with OTEL instrumentation.
type ObservedClient struct {
	inner anuris.CompletionClient
	inst  *Instruments
}

// WrapClient returns an instrumented completion client.
func WrapClient(inner anuris.CompletionClient, inst *Instruments) *ObservedClient {
	return &ObservedClient{inner: inner, inst: inst}
}

func (o *ObservedClient) Name() string { return o.inner.Name() }

func (o *ObservedClient) Chat(ctx context.Context, req anuris.ChatRequest) (anuris.ChatResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.chat", trace.WithAttributes(
		AttrLLMClient.String(o.inner.Name()),
		AttrLLMMethod.String("chat"),
		AttrToolCount.Int(len(req.Tools)),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Chat(ctx, req)
	o.record(ctx, span, "chat", start, err)
	return resp, err
}

func (o *ObservedClient) Stream(ctx context.Context, req anuris.ChatRequest) (anuris.StreamResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.stream", trace.WithAttributes(
		AttrLLMClient.String(o.inner.Name()),
		AttrLLMMethod.String("stream"),
		AttrToolCount.Int(len(req.Tools)),
	))
	defer span.End()
	start := time.Now()

	result, err := o.inner.Stream(ctx, req)
	o.record(ctx, span, "stream", start, err)
	return result, err
}

func (o *ObservedClient) record(ctx context.Context, span trace.Span, method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMMethod.String(method),
		attribute.String("status", status),
	))
	o.inst.LLMDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		AttrLLMMethod.String(method),
	))
}

var _ anuris.CompletionClient = (*ObservedClient)(nil)
