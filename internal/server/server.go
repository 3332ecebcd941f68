// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dcc-portal/pqlservice/internal/event"
	"github.com/dcc-portal/pqlservice/internal/handler"
	"github.com/dcc-portal/pqlservice/internal/repl"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
	"github.com/dcc-portal/pqlservice/internal/repl/session"
	"github.com/dcc-portal/pqlservice/internal/share"
	"github.com/dcc-portal/pqlservice/internal/usage"
)

// shutdownTimeout bounds graceful shutdown once ctx is cancelled.
const shutdownTimeout = 10 * time.Second

// Config holds server configuration.
type Config struct {
	Port           int
	Registry       *schema.Registry
	Translator     *pql.Translator
	Codec          *share.Codec
	Tracker        *usage.Tracker
	Sessions       *session.Manager
	Publisher      event.Publisher // optional
	AllowedOrigins []string        // WebSocket origin patterns
}

// NewRouter builds the HTTP handler tree.
func NewRouter(cfg Config) http.Handler {
	httpRec := event.NewRecorder("http")
	wsRec := event.NewRecorder("ws")
	if cfg.Publisher != nil {
		httpRec.SetPublisher(cfg.Publisher)
		wsRec.SetPublisher(cfg.Publisher)
	}

	r := chi.NewRouter()
	r.Use(handler.Recovery, handler.Logging)

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	ph := handler.NewPQLHandler(cfg.Translator, cfg.Registry, cfg.Codec, cfg.Tracker, httpRec)
	r.Route("/api/pql", ph.Routes)

	repl.RegisterRoutes(r, repl.Options{
		Registry:       cfg.Registry,
		Translator:     cfg.Translator,
		Sessions:       cfg.Sessions,
		Codec:          cfg.Codec,
		Recorder:       wsRec,
		OriginPatterns: cfg.AllowedOrigins,
	})
	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, cfg Config) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("starting server on %s", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	shutdownErr := make(chan error, 1)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			shutdownErr <- nil
			return
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr <- server.Shutdown(sctx)
	}()

	err := server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		close(stopped)
		<-shutdownErr
		return err
	}
	return <-shutdownErr
}
