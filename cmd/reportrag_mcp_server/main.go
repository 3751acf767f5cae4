package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/flarexio/reportrag"

	mcpE "github.com/flarexio/reportrag/mcp"
	natsT "github.com/flarexio/reportrag/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "reportrag_mcp_server",
		Usage: "Expose a remote ReportRAG service as a stdio MCP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats",
				Usage:   "NATS server URL",
				Value:   "wss://nats.flarex.io",
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.StringFlag{
				Name:    "nats-creds",
				Usage:   "NATS user credentials file",
				Sources: cli.EnvVars("NATS_CREDS"),
			},
			&cli.StringFlag{
				Name:     "edge-id",
				Usage:    "Edge ID of the ReportRAG service",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout towards the ReportRAG service",
				Value: 2 * time.Minute,
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	edgeID := cmd.String("edge-id")

	opts := []nats.Option{
		nats.Name("ReportRAG MCP Server - " + edgeID),
	}

	if natsCreds := cmd.String("nats-creds"); natsCreds != "" {
		opts = append(opts, nats.UserCredentials(natsCreds))
	}

	nc, err := nats.Connect(cmd.String("nats"), opts...)
	if err != nil {
		return err
	}
	defer nc.Drain()

	topic := fmt.Sprintf("edges.%s.reportrag", edgeID)
	endpoints := natsT.MakeEndpoints(nc, topic, cmd.Duration("timeout"))

	svc := reportrag.ProxyMiddleware(endpoints)(nil)

	s := newStdioServer(os.Stdin, os.Stdout, map[mcp.MCPMethod]mcpE.MCPEndpoint{
		mcp.MethodInitialize: mcpE.InitializeEndpoint(svc),
		mcp.MethodPing:       mcpE.PingEndpoint(svc),
		mcp.MethodToolsList:  mcpE.ListToolsEndpoint(svc),
		mcp.MethodToolsCall:  mcpE.CallToolEndpoint(svc),
	})

	errs := make(chan error, 1)
	go func() {
		errs <- s.Serve(ctx)
	}()

	// stdin closing ends the session as well as a signal does
	select {
	case <-ctx.Done():
		return nil
	case err := <-errs:
		return err
	}
}
