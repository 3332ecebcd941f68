package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dcc-portal/pqlservice/internal/config"
	"github.com/dcc-portal/pqlservice/internal/eventbus"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
	"github.com/dcc-portal/pqlservice/internal/shell"
	"github.com/dcc-portal/pqlservice/internal/usage"
)

func main() {
	cfg, err := config.Load("pqlsh", os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		fmt.Println("usage: pqlsh [--config file] [--log-level level] [--catalog file] [--verbose]")
		return
	}
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	registry := schema.DefaultRegistry()
	if cfg.Catalog.Path != "" {
		registry, err = schema.LoadCatalogFile(cfg.Catalog.Path)
		if err != nil {
			log.Fatalf("loading catalog: %v", err)
		}
	}

	stderr := log.New(os.Stderr, "", 0)
	tr := pql.New(pql.WithLogger(pql.NewStdLogger(stderr, pql.ParseLevel(cfg.Logging.Level))))

	tracker := usage.NewTracker()
	bus := eventbus.New(cfg.EventBus.Buffer)
	bus.Subscribe("usage", eventbus.NewUsageConsumer(tracker))
	if cfg.EventBus.Verbose {
		bus.Subscribe("log", eventbus.NewLogConsumer(true))
	}
	bus.Start(context.Background())

	sh := shell.New(shell.Options{
		Registry:   registry,
		Translator: tr,
		Publisher:  bus,
		Tracker:    tracker,
	})
	err = sh.Run(os.Stdout, cfg.Shell.HistoryFile)
	bus.Stop()
	if err != nil {
		log.Fatalf("shell: %v", err)
	}
}
