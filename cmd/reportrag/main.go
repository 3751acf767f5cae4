package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flarexio/reportrag"
	"github.com/flarexio/reportrag/chunker"
	"github.com/flarexio/reportrag/embedding"
	"github.com/flarexio/reportrag/gemini"
	"github.com/flarexio/reportrag/pdf"
	"github.com/flarexio/reportrag/persistence/chromem"
	"github.com/flarexio/reportrag/registry"

	mcpE "github.com/flarexio/reportrag/mcp"
	redisR "github.com/flarexio/reportrag/persistence/redis"
	yamlR "github.com/flarexio/reportrag/persistence/yaml"
	httpT "github.com/flarexio/reportrag/transport/http"
	natsT "github.com/flarexio/reportrag/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "reportrag",
		Usage: "Annual report question answering",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path to the ReportRAG data directory",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the pipeline over NATS and HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "nats",
						Usage:   "NATS server URL, empty to disable",
						Sources: cli.EnvVars("NATS_URL"),
					},
					&cli.BoolFlag{
						Name:  "http",
						Usage: "Enable HTTP transport",
						Value: true,
					},
					&cli.StringFlag{
						Name:  "http-addr",
						Usage: "HTTP server address",
						Value: ":5000",
					},
				},
				Action: serve,
			},
			{
				Name:      "ingest",
				Usage:     "Index a PDF report",
				ArgsUsage: "<file.pdf>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Ingest even if the report is already indexed",
					},
				},
				Action: ingest,
			},
			{
				Name:      "ask",
				Usage:     "Ask a question about the indexed report",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of excerpts to retrieve",
					},
					&cli.BoolFlag{
						Name:  "prompt",
						Usage: "Print the grounded prompt instead of answering",
					},
				},
				Action: ask,
			},
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func dataPath(cmd *cli.Command) (string, error) {
	path := cmd.String("path")
	if path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".flarex", "reportrag"), nil
}

// loadConfig decodes config.yaml onto the defaults, then applies
// environment overrides. A missing config file is not an error.
func loadConfig(path string) (reportrag.Config, error) {
	cfg := reportrag.DefaultConfig()

	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}

	f, err := os.Open(filepath.Join(path, "config.yaml"))
	switch {
	case err == nil:
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, err
		}

	case !errors.Is(err, os.ErrNotExist):
		return cfg, err
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}

	if cfg.Vector.Path == "" {
		cfg.Vector.Path = filepath.Join(path, "vectors")
	}

	if cfg.Registry.Path == "" {
		cfg.Registry.Path = filepath.Join(path, "registry")
	}

	return cfg, nil
}

type application struct {
	svc    reportrag.Service
	log    *zap.Logger
	path   string
	closer []func() error
}

func (app *application) Close() {
	for i := len(app.closer) - 1; i >= 0; i-- {
		if err := app.closer[i](); err != nil {
			app.log.Warn("close failed", zap.Error(err))
		}
	}

	app.log.Sync()
}

func bootstrap(ctx context.Context, cmd *cli.Command) (*application, error) {
	path, err := dataPath(cmd)
	if err != nil {
		return nil, err
	}

	return newApplication(ctx, path)
}

// newApplication wires the service from the data directory at path. On
// failure everything opened so far is closed again.
func newApplication(ctx context.Context, path string) (_ *application, err error) {
	log, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(log)

	app := &application{
		log:  log,
		path: path,
	}

	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	app.closer = append(app.closer, func() error {
		return tp.Shutdown(context.Background())
	})

	tokenizer, err := chunker.NewTiktoken(cfg.Chunker.Encoding)
	if err != nil {
		return nil, err
	}

	c, err := chunker.New(tokenizer, cfg.Chunker.Tokens)
	if err != nil {
		return nil, err
	}

	client, err := gemini.NewClient(ctx, cfg.Gemini)
	if err != nil {
		return nil, err
	}
	app.closer = append(app.closer, client.Close)

	batcher := embedding.NewBatcher(client,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithDelay(cfg.Embedding.Delay.Duration()),
		embedding.WithRetryPolicy(cfg.Embedding.RetryPolicy()),
		embedding.WithConcurrency(cfg.Embedding.Concurrency),
		embedding.WithLogger(log),
	)

	db, err := chromem.NewChromemVectorDB(cfg.Vector)
	if err != nil {
		return nil, err
	}

	var reg registry.Registry
	switch cfg.Registry.Driver {
	case "redis":
		rdb := redisR.NewClient(cfg.Registry)
		app.closer = append(app.closer, rdb.Close)

		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		reg = redisR.NewRegistry(rdb, cfg.Registry.Redis.Prefix)

	case "file", "":
		reg, err = yamlR.NewRegistry(cfg.Registry.Path)
		if err != nil {
			return nil, err
		}

	case "none":

	default:
		return nil, fmt.Errorf("unknown registry driver: %s", cfg.Registry.Driver)
	}

	svc, err := reportrag.NewService(cfg, c, batcher, db, client, reg)
	if err != nil {
		return nil, err
	}
	app.closer = append(app.closer, svc.Close)

	svc = reportrag.LoggingMiddleware(log)(svc)
	svc = reportrag.TracingMiddleware(otel.Tracer("reportrag"))(svc)

	app.svc = svc
	return app, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	app, err := bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	svc := app.svc
	endpoints := reportrag.MakeEndpoints(svc)

	// Add NATS Transport
	if natsURL := cmd.String("nats"); natsURL != "" {
		edgeID := "local"
		if idBytes, err := os.ReadFile(filepath.Join(app.path, "id")); err == nil {
			edgeID = strings.TrimSpace(string(idBytes))
		}

		opts := []nats.Option{
			nats.Name("ReportRAG Server - " + edgeID),
		}

		natsCreds := filepath.Join(app.path, "user.creds")
		if _, err := os.Stat(natsCreds); err == nil {
			opts = append(opts, nats.UserCredentials(natsCreds))
		}

		nc, err := nats.Connect(natsURL, opts...)
		if err != nil {
			return err
		}
		defer nc.Drain()

		srv, err := micro.AddService(nc, micro.Config{
			Name:    "reportrag",
			Version: "1.0.0",
		})

		if err != nil {
			return err
		}
		defer srv.Stop()

		topic := "edges." + edgeID + ".reportrag"

		root := srv.AddGroup(topic)
		if err := natsT.AddEndpoints(root, endpoints); err != nil {
			return err
		}
	}

	httpEnabled := cmd.Bool("http")
	if httpEnabled {
		r := gin.Default()
		httpT.AddRouters(r, endpoints)

		endpoints := make(map[mcp.MCPMethod]mcpE.MCPEndpoint)
		endpoints[mcp.MethodInitialize] = mcpE.InitializeEndpoint(svc)
		endpoints[mcp.MethodPing] = mcpE.PingEndpoint(svc)
		endpoints[mcp.MethodToolsList] = mcpE.ListToolsEndpoint(svc)
		endpoints[mcp.MethodToolsCall] = mcpE.CallToolEndpoint(svc)
		httpT.AddStreamableRouters(r, endpoints)

		httpAddr := cmd.String("http-addr")
		go r.Run(httpAddr)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	app.log.Info("graceful shutdown", zap.String("signal", sign.String()))
	return nil
}

func ingest(ctx context.Context, cmd *cli.Command) error {
	file := cmd.Args().First()
	if file == "" {
		return errors.New("pdf file is required")
	}

	if !strings.EqualFold(filepath.Ext(file), ".pdf") {
		return errors.New("file must be a PDF")
	}

	app, err := bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	bs, pages, err := pdf.ReadFile(file)
	if err != nil {
		return err
	}

	doc := reportrag.Document{
		ID:    registry.DocumentID(bs),
		Pages: pages,
		Force: cmd.Bool("force"),
	}

	start := time.Now()

	result, err := app.svc.Ingest(ctx, doc)
	if err != nil {
		return err
	}

	fmt.Printf("indexed %d chunks from %d pages into %s in %s\n",
		result.NumChunks, result.NumPages, result.CollectionName,
		time.Since(start).Round(time.Millisecond))
	fmt.Printf("document id: %s\n", doc.ID)
	return nil
}

func ask(ctx context.Context, cmd *cli.Command) error {
	question := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("question is required")
	}

	app, err := bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if cmd.Bool("prompt") {
		prompt, err := app.svc.BuildPrompt(ctx, question, int(cmd.Int("k")))
		if err != nil {
			return err
		}

		fmt.Println(prompt)
		return nil
	}

	answer, err := app.svc.Answer(ctx, question, int(cmd.Int("k")))
	if err != nil {
		return err
	}

	fmt.Println(answer)
	return nil
}
