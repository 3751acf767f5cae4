package nats

import (
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/reportrag"
)

func AddEndpoints(group micro.Group, endpoints *reportrag.EndpointSet) error {
	handlers := map[string]micro.Handler{
		"ingest":       IngestHandler(endpoints.Ingest),
		"build_prompt": BuildPromptHandler(endpoints.BuildPrompt),
		"answer":       AnswerHandler(endpoints.Answer),
		"invalidate":   InvalidateHandler(endpoints.Invalidate),
	}

	for name, handler := range handlers {
		if err := group.AddEndpoint(name, handler); err != nil {
			return err
		}
	}

	return nil
}
