package reportrag

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"
)

type EndpointSet struct {
	Ingest      endpoint.Endpoint
	BuildPrompt endpoint.Endpoint
	Answer      endpoint.Endpoint
	Invalidate  endpoint.Endpoint
}

func MakeEndpoints(svc Service) *EndpointSet {
	return &EndpointSet{
		Ingest:      IngestEndpoint(svc),
		BuildPrompt: BuildPromptEndpoint(svc),
		Answer:      AnswerEndpoint(svc),
		Invalidate:  InvalidateEndpoint(svc),
	}
}

func IngestEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(Document)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Ingest(ctx, req)
	}
}

type QueryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type PromptResponse struct {
	Prompt string `json:"prompt"`
}

func BuildPromptEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(QueryRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		prompt, err := svc.BuildPrompt(ctx, req.Query, req.K)
		if err != nil {
			return nil, err
		}

		return &PromptResponse{prompt}, nil
	}
}

type AnswerResponse struct {
	Answer string `json:"answer"`
}

func AnswerEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(QueryRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		answer, err := svc.Answer(ctx, req.Query, req.K)
		if err != nil {
			return nil, err
		}

		return &AnswerResponse{answer}, nil
	}
}

func InvalidateEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		documentID, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		err := svc.Invalidate(ctx, documentID)
		return nil, err
	}
}
