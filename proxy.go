package reportrag

import (
	"context"
	"errors"
)

// ProxyMiddleware turns a set of remote endpoints into a Service. The
// wrapped service is ignored.
func ProxyMiddleware(endpoints *EndpointSet) ServiceMiddleware {
	return func(next Service) Service {
		return &proxyMiddleware{
			endpoints: endpoints,
		}
	}
}

type proxyMiddleware struct {
	endpoints *EndpointSet
}

func (mw *proxyMiddleware) Close() error {
	return errors.New("method not implemented")
}

func (mw *proxyMiddleware) Ingest(ctx context.Context, doc Document) (*IngestResult, error) {
	resp, err := mw.endpoints.Ingest(ctx, doc)
	if err != nil {
		return nil, err
	}

	result, ok := resp.(*IngestResult)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return result, nil
}

func (mw *proxyMiddleware) BuildPrompt(ctx context.Context, question string, k ...int) (string, error) {
	req := QueryRequest{
		Query: question,
	}

	if len(k) > 0 {
		req.K = k[0]
	}

	resp, err := mw.endpoints.BuildPrompt(ctx, req)
	if err != nil {
		return "", err
	}

	result, ok := resp.(*PromptResponse)
	if !ok {
		return "", errors.New("invalid response type")
	}

	return result.Prompt, nil
}

func (mw *proxyMiddleware) Answer(ctx context.Context, question string, k ...int) (string, error) {
	req := QueryRequest{
		Query: question,
	}

	if len(k) > 0 {
		req.K = k[0]
	}

	resp, err := mw.endpoints.Answer(ctx, req)
	if err != nil {
		return "", err
	}

	result, ok := resp.(*AnswerResponse)
	if !ok {
		return "", errors.New("invalid response type")
	}

	return result.Answer, nil
}

func (mw *proxyMiddleware) Invalidate(ctx context.Context, documentID string) error {
	_, err := mw.endpoints.Invalidate(ctx, documentID)
	return err
}
