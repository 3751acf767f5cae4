package reportrag

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func TracingMiddleware(tracer trace.Tracer) ServiceMiddleware {
	return func(next Service) Service {
		return &tracingMiddleware{
			tracer: tracer,
			next:   next,
		}
	}
}

type tracingMiddleware struct {
	tracer trace.Tracer
	next   Service
}

func (mw *tracingMiddleware) Close() error {
	return mw.next.Close()
}

func (mw *tracingMiddleware) Ingest(ctx context.Context, doc Document) (*IngestResult, error) {
	ctx, span := mw.tracer.Start(ctx, "reportrag.Ingest", trace.WithAttributes(
		attribute.String("document.id", doc.ID),
		attribute.Int("document.pages", len(doc.Pages)),
		attribute.Bool("document.force", doc.Force),
	))
	defer span.End()

	result, err := mw.next.Ingest(ctx, doc)
	if err != nil {
		fail(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("collection.name", result.CollectionName),
		attribute.Int("collection.chunks", result.NumChunks),
	)
	return result, nil
}

func (mw *tracingMiddleware) BuildPrompt(ctx context.Context, question string, k ...int) (string, error) {
	ctx, span := mw.tracer.Start(ctx, "reportrag.BuildPrompt")
	defer span.End()

	if len(k) > 0 {
		span.SetAttributes(attribute.Int("retrieval.k", k[0]))
	}

	prompt, err := mw.next.BuildPrompt(ctx, question, k...)
	if err != nil {
		fail(span, err)
		return "", err
	}

	return prompt, nil
}

func (mw *tracingMiddleware) Answer(ctx context.Context, question string, k ...int) (string, error) {
	ctx, span := mw.tracer.Start(ctx, "reportrag.Answer")
	defer span.End()

	if len(k) > 0 {
		span.SetAttributes(attribute.Int("retrieval.k", k[0]))
	}

	answer, err := mw.next.Answer(ctx, question, k...)
	if err != nil {
		fail(span, err)
		return "", err
	}

	return answer, nil
}

func (mw *tracingMiddleware) Invalidate(ctx context.Context, documentID string) error {
	ctx, span := mw.tracer.Start(ctx, "reportrag.Invalidate", trace.WithAttributes(
		attribute.String("document.id", documentID),
	))
	defer span.End()

	err := mw.next.Invalidate(ctx, documentID)
	if err != nil {
		fail(span, err)
		return err
	}

	return nil
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
