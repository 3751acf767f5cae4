package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/mark3labs/mcp-go/mcp"

	mcpE "github.com/flarexio/reportrag/mcp"
)

// maxLineSize bounds one JSON-RPC message read from stdin.
const maxLineSize = 1 << 20

// stdioServer answers newline delimited JSON-RPC requests one at a time.
type stdioServer struct {
	in        io.Reader
	out       io.Writer
	endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint
}

func newStdioServer(in io.Reader, out io.Writer, endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint) *stdioServer {
	return &stdioServer{
		in:        in,
		out:       out,
		endpoints: endpoints,
	}
}

func rpcError(id mcp.RequestId, code int, message string) mcp.JSONRPCError {
	return mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      id,
		Error: struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    any    `json:"data,omitempty"`
		}{
			Code:    code,
			Message: message,
		},
	}
}

func (s *stdioServer) handle(ctx context.Context, line []byte) mcp.JSONRPCMessage {
	var req mcpE.JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return rpcError(mcp.NewRequestId(nil), mcp.PARSE_ERROR, err.Error())
	}

	// notifications expect no reply
	if req.ID.IsNil() {
		return nil
	}

	endpoint, ok := s.endpoints[req.Method]
	if !ok {
		return rpcError(req.ID, mcp.METHOD_NOT_FOUND, "method not found: "+string(req.Method))
	}

	return endpoint(ctx, req)
}

// Serve returns when stdin is exhausted or ctx is done.
func (s *stdioServer) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	enc := json.NewEncoder(s.out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handle(ctx, line)
		if resp == nil {
			continue
		}

		if err := enc.Encode(resp); err != nil {
			return err
		}
	}

	return scanner.Err()
}
