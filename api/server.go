// Package api serves the operational HTTP surface: run history, latest
// schedules, delivery KPIs and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/volteq/flexplan/infra/logger"
)

// Handlers carries the endpoints mounted on the operational server. Nil
// entries are skipped.
type Handlers struct {
	Runs      http.Handler
	Schedules http.Handler
	KPIs      http.Handler
}

// StartServer serves the operational API on addr until the context is
// canceled. A dedicated ServeMux is used to avoid interfering with other
// handlers.
func StartServer(ctx context.Context, addr string, h Handlers) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if h.Runs != nil {
		mux.Handle("/api/runs", h.Runs)
	}
	if h.Schedules != nil {
		mux.Handle("/api/schedules", h.Schedules)
	}
	if h.KPIs != nil {
		mux.Handle("/api/portfolios/", h.KPIs)
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.New("api").Errorf("server shutdown: %v", err)
		}
		cancel()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
