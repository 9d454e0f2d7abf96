package observer

import (
	"context"
	"time"

	fathom "github.com/fathomhq/fathom"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedVectorDB wraps a fathom.VectorDB with OTEL instrumentation.
// Search and Insert get full spans and metrics; the administrative calls
// get spans only.
type ObservedVectorDB struct {
	inner fathom.VectorDB
	inst  *Instruments
}

// WrapVectorDB returns an instrumented vector store.
func WrapVectorDB(inner fathom.VectorDB, inst *Instruments) *ObservedVectorDB {
	return &ObservedVectorDB{inner: inner, inst: inst}
}

func (o *ObservedVectorDB) DefaultCollection() string { return o.inner.DefaultCollection() }

func (o *ObservedVectorDB) Search(ctx context.Context, collection string, vector []float32, topK int) ([]fathom.RetrievalResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "vectordb.search", trace.WithAttributes(
		AttrDBCollection.String(collection),
		AttrDBTopK.Int(topK),
	))
	defer span.End()
	start := time.Now()

	results, err := o.inner.Search(ctx, collection, vector, topK)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrDBResults.Int(len(results)))

	o.inst.SearchRequests.Add(ctx, 1, metric.WithAttributes(
		AttrDBCollection.String(collection),
		attribute.String("status", status),
	))
	o.inst.SearchDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrDBCollection.String(collection),
	))

	return results, err
}

func (o *ObservedVectorDB) Insert(ctx context.Context, collection string, chunks []fathom.Chunk) error {
	ctx, span := o.inst.Tracer.Start(ctx, "vectordb.insert", trace.WithAttributes(
		AttrDBCollection.String(collection),
		AttrDBChunks.Int(len(chunks)),
	))
	defer span.End()

	err := o.inner.Insert(ctx, collection, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *ObservedVectorDB) InitCollection(ctx context.Context, dim int, collection, description string, force bool) error {
	ctx, span := o.inst.Tracer.Start(ctx, "vectordb.init_collection", trace.WithAttributes(
		AttrDBCollection.String(collection),
	))
	defer span.End()

	err := o.inner.InitCollection(ctx, dim, collection, description, force)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *ObservedVectorDB) ListCollections(ctx context.Context, dim int) ([]fathom.CollectionInfo, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "vectordb.list_collections")
	defer span.End()

	infos, err := o.inner.ListCollections(ctx, dim)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return infos, err
}

func (o *ObservedVectorDB) Clear(ctx context.Context, collection string) error {
	ctx, span := o.inst.Tracer.Start(ctx, "vectordb.clear", trace.WithAttributes(
		AttrDBCollection.String(collection),
	))
	defer span.End()

	err := o.inner.Clear(ctx, collection)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

var _ fathom.VectorDB = (*ObservedVectorDB)(nil)
