package nats

import (
	"context"
	"encoding/json"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/reportrag"
)

func IngestHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req reportrag.Document
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, req)
		if err != nil {
			r.Error(code(err), err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}

func BuildPromptHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return queryHandler(endpoint)
}

func AnswerHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return queryHandler(endpoint)
}

func queryHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req reportrag.QueryRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, req)
		if err != nil {
			r.Error(code(err), err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}

func InvalidateHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		documentID := string(r.Data())
		if documentID == "" {
			r.Error("400", "document id is required", nil)
			return
		}

		ctx := context.Background()
		_, err := endpoint(ctx, documentID)
		if err != nil {
			r.Error(code(err), err.Error(), nil)
			return
		}

		r.Respond([]byte("OK"))
	}
}
