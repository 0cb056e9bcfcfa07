package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/composition"
	"github.com/fabfab/convo-rag/internal/config"
	httptransport "github.com/fabfab/convo-rag/internal/transport/http"
)

func main() {
	var showVersion bool
	var configPath string
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.StringVar(&configPath, "config", "", "path to an optional config file")
	flag.Parse()

	if showVersion {
		fmt.Println("convo-rag dev build")
		return
	}

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

	srv := httptransport.New(app)
	httpServer := &http.Server{
		Addr:    cfg.Address,
		Handler: srv,
	}

	sugar.Infow("starting server", "address", cfg.Address, "embedding_provider", cfg.Embedding.Provider, "llm_provider", cfg.LLM.Provider)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("http server error", "error", err)
		}
	}()

	waitForShutdown(httpServer, sugar)
}

func waitForShutdown(srv *http.Server, log *zap.SugaredLogger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warnw("graceful shutdown failed", "error", err)
		if err := srv.Close(); err != nil {
			log.Errorw("forced close failed", "error", err)
		}
	}

	log.Info("server stopped")
}
