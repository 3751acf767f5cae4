package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"

	mcpE "github.com/flarexio/reportrag/mcp"
)

func jsonrpcError(id mcp.RequestId, code int, message string) mcp.JSONRPCError {
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

func MCPStreamableHandler(endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mcpE.JSONRPCRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(err)
			c.Abort()

			resp := jsonrpcError(req.ID, mcp.PARSE_ERROR, err.Error())
			c.JSON(http.StatusBadRequest, &resp)
			return
		}

		// notifications get no response body
		if req.ID.IsNil() {
			c.Status(http.StatusAccepted)
			return
		}

		endpoint, ok := endpoints[req.Method]
		if !ok {
			resp := jsonrpcError(req.ID, mcp.METHOD_NOT_FOUND, "method not found")
			c.JSON(http.StatusNotFound, &resp)
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		resp := endpoint(ctx, req)

		c.JSON(http.StatusOK, &resp)
	}
}
