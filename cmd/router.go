package main

import (
	"encoding/json"
	"net/http"

	"github.com/angeloszaimis/session-cache/internal/health"
	"github.com/angeloszaimis/session-cache/internal/metrics"
)

func setupRouter(collector *metrics.Collector, monitor *health.Monitor) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/metrics", collector.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(monitor.Snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return mux
}
