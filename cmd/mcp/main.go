package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/composition"
	"github.com/fabfab/convo-rag/internal/config"
	mcptransport "github.com/fabfab/convo-rag/internal/transport/mcp"
)

func main() {
	var configPath string
	var transport string
	var addr string
	flag.StringVar(&configPath, "config", "", "path to an optional config file")
	flag.StringVar(&transport, "transport", "stdio", "transport type: stdio or http")
	flag.StringVar(&addr, "addr", "127.0.0.1:8090", "listen address for the http transport")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	sugar := log.Sugar()

	cfg, err := config.Load(configPath)
	if err != nil {
		sugar.Fatalw("failed to load configuration", "error", err)
	}

	ctx := context.Background()
	app, err := composition.Build(ctx, cfg, log)
	if err != nil {
		sugar.Fatalw("failed to build application", "error", err)
	}
	defer app.Close()

	mcpServer := mcptransport.New(app)

	switch transport {
	case "stdio":
		sugar.Info("starting MCP server on stdio")
		if err := server.ServeStdio(mcpServer); err != nil {
			sugar.Fatalw("MCP server error", "error", err)
		}
	case "http":
		sugar.Infow("starting MCP server", "address", addr)
		mux := http.NewServeMux()
		mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpServer, server.WithStateful(true)))

		httpServer := &http.Server{Addr: addr, Handler: mux}
		if err := httpServer.ListenAndServe(); err != nil {
			sugar.Fatalw("MCP http server error", "error", err)
		}
	default:
		sugar.Fatalw("unknown transport", "transport", transport)
	}
}
