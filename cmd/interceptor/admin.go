package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cygnal-app/interceptor"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maximum size of a command message
const maxMessageBytes = 64 << 10

// adminRouter serves the out-of-band endpoints of the daemon.
func adminRouter(ctx context.Context, i *interceptor.Interceptor, messages chan<- []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s\n", i.Phase())
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	r.Post("/messages", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
		if err != nil {
			http.Error(w, "Could not read message", http.StatusBadRequest)
			return
		}
		select {
		case messages <- body:
			w.WriteHeader(http.StatusAccepted)
		case <-r.Context().Done():
		case <-ctx.Done():
			http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		}
	})

	r.Route("/lifecycle", func(r chi.Router) {
		r.Post("/install", func(w http.ResponseWriter, r *http.Request) {
			if err := i.Install(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}
			fmt.Fprintf(w, "%s\n", i.Phase())
		})
		r.Post("/activate", func(w http.ResponseWriter, r *http.Request) {
			if err := i.Activate(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			fmt.Fprintf(w, "%s\n", i.Phase())
		})
	})

	return r
}
