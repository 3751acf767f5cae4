package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/reportrag"
)

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      mcp.RequestId   `json:"id"`
	Method  mcp.MCPMethod   `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func errorResponse(id any, code int, message string) mcp.JSONRPCError {
	return mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(id),
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

type MCPEndpoint func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage

const MCPSERVER_INSTRUCTIONS string = `ReportRAG answers questions about the annual report indexed on this server.

Every answer is grounded on the report excerpts closest to the question and
cites the pages it relies on. When nothing has been indexed yet the tool
reports an error instead of answering.

Available operations:
- tools/list: Get the available tools
- tools/call: Call query_report with a question`

const QueryReportTool = "query_report"

// QueryReport describes the single tool exposed over MCP.
var QueryReport = mcp.NewTool(QueryReportTool,
	mcp.WithDescription("Answer a question about the indexed annual report, citing pages."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The question to answer"),
	),
)

func InitializeEndpoint(svc reportrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		protocolVersion := mcp.LATEST_PROTOCOL_VERSION
		if clientVersion := params.ProtocolVersion; clientVersion != "" {
			if slices.Contains(mcp.ValidProtocolVersions, clientVersion) {
				protocolVersion = clientVersion
			}
		}

		result := &mcp.InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: mcp.ServerCapabilities{
				Tools: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{},
			},
			ServerInfo: mcp.Implementation{
				Name:    "reportrag",
				Version: "1.0.0",
			},
			Instructions: MCPSERVER_INSTRUCTIONS,
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func PingEndpoint(svc reportrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  struct{}{}, // empty response
		}
	}
}

func ListToolsEndpoint(svc reportrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		result := &mcp.ListToolsResult{
			Tools: []mcp.Tool{QueryReport},
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func CallToolEndpoint(svc reportrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		if params.Name != QueryReportTool {
			return errorResponse(req.ID, mcp.METHOD_NOT_FOUND, fmt.Sprintf("unknown tool: %s", params.Name))
		}

		callToolReq := mcp.CallToolRequest{
			Request: mcp.Request{
				Method: string(req.Method),
			},
			Params: params,
		}

		question, ok := callToolReq.GetArguments()["question"].(string)
		if !ok || question == "" {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, "question is required")
		}

		var result *mcp.CallToolResult

		answer, err := svc.Answer(ctx, question)
		switch {
		case err == nil:
			result = mcp.NewToolResultText(answer)

		case errors.Is(err, reportrag.ErrEmptyIndex),
			errors.Is(err, reportrag.ErrGenerationFailed),
			errors.Is(err, reportrag.ErrEmptyQuestion):
			// reported to the model, not treated as a protocol failure
			result = mcp.NewToolResultError(err.Error())

		default:
			return errorResponse(req.ID, mcp.INTERNAL_ERROR, err.Error())
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}
