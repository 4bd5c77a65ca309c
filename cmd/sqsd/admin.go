package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/finch-technologies/go-sqs-listener/listener"
	"github.com/finch-technologies/go-sqs-listener/metrics"
	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Listeners map[string]string `json:"listeners"`
	// Backlog holds the waiting messages per queue, for backends that can
	// count them.
	Backlog map[string]int `json:"backlog,omitempty"`
}

func newAdminRouter(collector metrics.Collector, listeners []*listener.Listener) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Listeners: make(map[string]string, len(listeners))}
		code := http.StatusOK

		for _, l := range listeners {
			name := l.Identity().Name
			resp.Listeners[name] = l.State().String()

			count, err := l.Backlog(r.Context())
			switch {
			case errors.Is(err, queue.ErrNotSupported):
			case err != nil:
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			default:
				if resp.Backlog == nil {
					resp.Backlog = make(map[string]int, len(listeners))
				}
				resp.Backlog[name] = count
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})

	r.Handle("/metrics", collector.GetMetricsHandler())

	return r
}
