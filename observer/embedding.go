package observer

import (
	"context"
	"time"

	fathom "github.com/fathomhq/fathom"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedEmbedding wraps a fathom.EmbeddingProvider with OTEL instrumentation.
type ObservedEmbedding struct {
	inner fathom.EmbeddingProvider
	inst  *Instruments
	model string
}

// WrapEmbedding returns an instrumented embedding provider.
func WrapEmbedding(inner fathom.EmbeddingProvider, model string, inst *Instruments) *ObservedEmbedding {
	return &ObservedEmbedding{inner: inner, inst: inst, model: model}
}

func (o *ObservedEmbedding) Name() string    { return o.inner.Name() }
func (o *ObservedEmbedding) Dimensions() int { return o.inner.Dimensions() }

func (o *ObservedEmbedding) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.observe(ctx, "llm.embed_query", func(ctx context.Context) ([][]float32, error) {
		vec, err := o.inner.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (o *ObservedEmbedding) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return o.observe(ctx, "llm.embed_documents", func(ctx context.Context) ([][]float32, error) {
		return o.inner.EmbedDocuments(ctx, texts)
	}, len(texts))
}

func (o *ObservedEmbedding) observe(ctx context.Context, spanName string, call func(context.Context) ([][]float32, error), count int) ([][]float32, error) {
	ctx, span := o.inst.Tracer.Start(ctx, spanName, trace.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrEmbedTextCount.Int(count),
		AttrEmbedDimensions.Int(o.inner.Dimensions()),
	))
	defer span.End()
	start := time.Now()

	result, err := call(ctx)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.inst.EmbedRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.EmbedDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
	))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("embedding completed"))
	rec.AddAttributes(
		otellog.String("llm.model", o.model),
		otellog.String("llm.provider", o.inner.Name()),
		otellog.Int("llm.embed.text_count", count),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}

var _ fathom.EmbeddingProvider = (*ObservedEmbedding)(nil)
