package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dcc-portal/pqlservice/internal/config"
	"github.com/dcc-portal/pqlservice/internal/eventbus"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
	"github.com/dcc-portal/pqlservice/internal/repl/session"
	"github.com/dcc-portal/pqlservice/internal/server"
	"github.com/dcc-portal/pqlservice/internal/share"
	"github.com/dcc-portal/pqlservice/internal/usage"
)

func main() {
	cfg, err := config.Load("pqlservice", os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		fmt.Println("usage: pqlservice [--config file] [--port n] [--log-level level] [--catalog file] [--allowed-origins list] [--verbose]")
		return
	}
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := schema.DefaultRegistry()
	if cfg.Catalog.Path != "" {
		registry, err = schema.LoadCatalogFile(cfg.Catalog.Path)
		if err != nil {
			log.Fatalf("loading catalog: %v", err)
		}
	}
	log.Printf("catalog loaded: %d entities, %d fields", len(registry.EntityNames()), len(registry.FieldNames()))

	tr := pql.New(pql.WithLogger(pql.NewStdLogger(log.Default(), pql.ParseLevel(cfg.Logging.Level))))

	codec, err := share.NewCodec(cfg.Share.MaxBytes)
	if err != nil {
		log.Fatalf("creating share codec: %v", err)
	}
	defer codec.Close()

	tracker := usage.NewTracker()
	bus := eventbus.New(cfg.EventBus.Buffer)
	bus.Subscribe("usage", eventbus.NewUsageConsumer(tracker))
	bus.Subscribe("log", eventbus.NewLogConsumer(cfg.EventBus.Verbose))
	bus.Start(ctx)
	defer bus.Stop()

	sessions := session.NewManager(cfg.Session.MaxAge, cfg.Session.IdleTimeout)
	go sessions.Run(ctx, cfg.Session.CleanupInterval)

	if err := server.Run(ctx, server.Config{
		Port:           cfg.Server.Port,
		Registry:       registry,
		Translator:     tr,
		Codec:          codec,
		Tracker:        tracker,
		Sessions:       sessions,
		Publisher:      bus,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}); err != nil {
		log.Printf("server error: %v", err)
	}
}
