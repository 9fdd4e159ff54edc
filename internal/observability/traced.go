package observability

import (
	"context"
	"io"
	"time"

	"memo-web/internal/remote"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceTables wraps a table client with spans and remote call metrics.
func TraceTables(tables remote.Tables, tracer trace.Tracer, metrics *Collector) remote.Tables {
	return &tracedTables{inner: tables, tracer: tracer, metrics: metrics}
}

type tracedTables struct {
	inner   remote.Tables
	tracer  trace.Tracer
	metrics *Collector
}

func (t *tracedTables) start(ctx context.Context, op, table string) (context.Context, trace.Span, time.Time) {
	ctx, span := t.tracer.Start(ctx, "tables."+op, trace.WithAttributes(attribute.String("db.table", table)))
	return ctx, span, time.Now()
}

func (t *tracedTables) finish(span trace.Span, op string, started time.Time, err error) {
	t.metrics.RecordRemote("tables", op, time.Since(started), err)
	EndSpan(span, err)
}

func (t *tracedTables) Select(ctx context.Context, table string, filters []remote.Filter, order *remote.Order, dest any) error {
	ctx, span, started := t.start(ctx, "Select", table)
	err := t.inner.Select(ctx, table, filters, order, dest)
	t.finish(span, "select", started, err)
	return err
}

func (t *tracedTables) Insert(ctx context.Context, table string, row any, dest any) error {
	ctx, span, started := t.start(ctx, "Insert", table)
	err := t.inner.Insert(ctx, table, row, dest)
	t.finish(span, "insert", started, err)
	return err
}

func (t *tracedTables) Update(ctx context.Context, table string, patch any, filters []remote.Filter, dest any) error {
	ctx, span, started := t.start(ctx, "Update", table)
	err := t.inner.Update(ctx, table, patch, filters, dest)
	t.finish(span, "update", started, err)
	return err
}

func (t *tracedTables) Delete(ctx context.Context, table string, filters []remote.Filter) (int, error) {
	ctx, span, started := t.start(ctx, "Delete", table)
	n, err := t.inner.Delete(ctx, table, filters)
	span.SetAttributes(attribute.Int("db.rows_affected", n))
	t.finish(span, "delete", started, err)
	return n, err
}

// TraceStorage wraps an object store with spans and remote call metrics.
func TraceStorage(store remote.ObjectStore, tracer trace.Tracer, metrics *Collector) remote.ObjectStore {
	return &tracedStorage{inner: store, tracer: tracer, metrics: metrics}
}

type tracedStorage struct {
	inner   remote.ObjectStore
	tracer  trace.Tracer
	metrics *Collector
}

func (s *tracedStorage) Upload(ctx context.Context, bucket, path string, body io.Reader, opts remote.UploadOptions) error {
	ctx, span := s.tracer.Start(ctx, "storage.Upload", trace.WithAttributes(
		attribute.String("storage.bucket", bucket),
		attribute.String("storage.path", path),
	))
	started := time.Now()
	err := s.inner.Upload(ctx, bucket, path, body, opts)
	s.metrics.RecordRemote("storage", "upload", time.Since(started), err)
	EndSpan(span, err)
	return err
}

func (s *tracedStorage) PublicURL(bucket, path string) string {
	return s.inner.PublicURL(bucket, path)
}

func (s *tracedStorage) Remove(ctx context.Context, bucket string, paths []string) error {
	ctx, span := s.tracer.Start(ctx, "storage.Remove", trace.WithAttributes(
		attribute.String("storage.bucket", bucket),
		attribute.Int("storage.objects", len(paths)),
	))
	started := time.Now()
	err := s.inner.Remove(ctx, bucket, paths)
	s.metrics.RecordRemote("storage", "remove", time.Since(started), err)
	EndSpan(span, err)
	return err
}
