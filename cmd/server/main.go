package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/bibgest/internal/api"
	"github.com/dgallion1/bibgest/internal/catalog"
	"github.com/dgallion1/bibgest/internal/citation"
	"github.com/dgallion1/bibgest/internal/config"
	"github.com/dgallion1/bibgest/internal/pathstore"
	"github.com/dgallion1/bibgest/internal/pipeline"
	"github.com/dgallion1/bibgest/internal/relator"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relators := relator.Default()
	if cfg.RelatorsFile != "" {
		reg, err := relator.LoadFile(cfg.RelatorsFile)
		if err != nil {
			log.Error("failed to load relators", "path", cfg.RelatorsFile, "error", err)
			os.Exit(1)
		}
		relators = reg
	}
	log.Info("loaded relators", "terms", relators.Len())

	walker := catalog.NewWalker(citation.NewParser(relators), log, cfg.WorkerCount)

	// Publishing is optional; without it jobs only parse.
	var ps *pathstore.Client
	if cfg.Publish {
		ps = pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
	}

	orch := pipeline.NewOrchestrator(cfg, walker, ps, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, walker, relators, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if ps != nil {
			ps.Close()
		}
	}()

	log.Info("starting bibgest", "port", cfg.Port, "publish", cfg.Publish)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
