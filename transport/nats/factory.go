package nats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/reportrag"
	"github.com/flarexio/reportrag/registry"
)

// MakeEndpoints returns client endpoints for a service exposed under prefix.
// Answers and ingestion wait on upstream models, so timeout should be
// generous.
func MakeEndpoints(nc *nats.Conn, prefix string, timeout time.Duration) *reportrag.EndpointSet {
	if timeout <= 0 {
		timeout = nats.DefaultTimeout
	}

	return &reportrag.EndpointSet{
		Ingest:      IngestEndpoint(nc, prefix+".ingest", timeout),
		BuildPrompt: BuildPromptEndpoint(nc, prefix+".build_prompt", timeout),
		Answer:      AnswerEndpoint(nc, prefix+".answer", timeout),
		Invalidate:  InvalidateEndpoint(nc, prefix+".invalidate", timeout),
	}
}

func roundTrip(ctx context.Context, nc *nats.Conn, topic string, data []byte, timeout time.Duration) (*nats.Msg, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := nc.RequestWithContext(ctx, topic, data)
	if err != nil {
		return nil, err
	}

	if err := Error(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func IngestEndpoint(nc *nats.Conn, topic string, timeout time.Duration) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(reportrag.Document)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := roundTrip(ctx, nc, topic, data, timeout)
		if err != nil {
			return nil, err
		}

		var result *reportrag.IngestResult
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func BuildPromptEndpoint(nc *nats.Conn, topic string, timeout time.Duration) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(reportrag.QueryRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := roundTrip(ctx, nc, topic, data, timeout)
		if err != nil {
			return nil, err
		}

		var result *reportrag.PromptResponse
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func AnswerEndpoint(nc *nats.Conn, topic string, timeout time.Duration) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(reportrag.QueryRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := roundTrip(ctx, nc, topic, data, timeout)
		if err != nil {
			return nil, err
		}

		var result *reportrag.AnswerResponse
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func InvalidateEndpoint(nc *nats.Conn, topic string, timeout time.Duration) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		documentID, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := roundTrip(ctx, nc, topic, []byte(documentID), timeout)
		if err != nil {
			return nil, err
		}

		return string(resp.Data), nil
	}
}

// remoteError carries the description sent by the service while still
// matching the sentinel its code stands for.
type remoteError struct {
	code        string
	description string
	sentinel    error
}

func (e *remoteError) Error() string {
	return e.code + ":" + e.description
}

func (e *remoteError) Unwrap() error {
	return e.sentinel
}

var sentinels = map[string]error{
	"404": reportrag.ErrEmptyIndex,
	"410": registry.ErrDocumentNotFound,
	"502": reportrag.ErrGenerationFailed,
}

// code is the micro error code a service error is reported with.
func code(err error) string {
	for code, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return "417"
}

func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	return &remoteError{
		code:        code,
		description: description,
		sentinel:    sentinels[code],
	}
}
