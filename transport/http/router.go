package http

import (
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/reportrag"

	mcpE "github.com/flarexio/reportrag/mcp"
)

func AddRouters(r *gin.Engine, endpoints *reportrag.EndpointSet) {
	// RESTful API routes
	api := r.Group("/api")
	{
		api.POST("/process-pdf", ProcessPDFHandler(endpoints.Ingest))
		api.POST("/query-pdf", QueryPDFHandler(endpoints.Answer))
		api.POST("/prompt", QueryPDFHandler(endpoints.BuildPrompt))
		api.DELETE("/documents/:document_id", InvalidateHandler(endpoints.Invalidate))
	}
}

func AddStreamableRouters(r *gin.Engine, endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint) {
	mcp := r.Group("/mcp")
	{
		mcp.POST("/", MCPStreamableHandler(endpoints))
	}
}
