package reportrag

import (
	"context"

	"go.uber.org/zap"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "reportrag"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}

func (mw *loggingMiddleware) Ingest(ctx context.Context, doc Document) (*IngestResult, error) {
	log := mw.log.With(
		zap.String("action", "ingest"),
		zap.Int("pages", len(doc.Pages)),
		zap.Bool("force", doc.Force),
	)

	if doc.ID != "" {
		log = log.With(
			zap.String("document_id", doc.ID),
		)
	}

	result, err := mw.next.Ingest(ctx, doc)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("document ingested",
		zap.String("collection", result.CollectionName),
		zap.Int("chunks", result.NumChunks),
	)
	return result, nil
}

func (mw *loggingMiddleware) BuildPrompt(ctx context.Context, question string, k ...int) (string, error) {
	var n int
	if len(k) > 0 {
		n = k[0]
	}

	log := mw.log.With(
		zap.String("action", "build_prompt"),
		zap.String("question", question),
	)

	if n > 0 {
		log = log.With(
			zap.Int("k", n),
		)
	}

	prompt, err := mw.next.BuildPrompt(ctx, question, k...)
	if err != nil {
		log.Error(err.Error())
		return "", err
	}

	log.Info("prompt built", zap.Int("length", len(prompt)))
	return prompt, nil
}

func (mw *loggingMiddleware) Answer(ctx context.Context, question string, k ...int) (string, error) {
	log := mw.log.With(
		zap.String("action", "answer"),
		zap.String("question", question),
	)

	if len(k) > 0 && k[0] > 0 {
		log = log.With(
			zap.Int("k", k[0]),
		)
	}

	answer, err := mw.next.Answer(ctx, question, k...)
	if err != nil {
		log.Error(err.Error())
		return "", err
	}

	log.Info("question answered")
	return answer, nil
}

func (mw *loggingMiddleware) Invalidate(ctx context.Context, documentID string) error {
	log := mw.log.With(
		zap.String("action", "invalidate"),
		zap.String("document_id", documentID),
	)

	err := mw.next.Invalidate(ctx, documentID)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("document invalidated")
	return nil
}
