// Package metrics exposes Prometheus instrumentation for collection runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ademuri/workout-music-tools/internal/logging"
)

var (
	APICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotify_api_calls_total",
			Help: "Outbound Spotify API attempts by endpoint and HTTP status (0 = transport error).",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spotify_api_call_duration_seconds",
			Help:    "Latency of Spotify API attempts.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotify_api_retries_total",
			Help: "Retried Spotify API attempts.",
		},
		[]string{"endpoint"},
	)

	PacerWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spotify_pacer_wait_seconds",
			Help:    "Time spent waiting on the shared pacing gate.",
			Buckets: []float64{0, .01, .05, .1, .15, .25, .5, 1},
		},
	)

	RowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_rows_loaded_total",
			Help: "Rows written by the loader by table.",
		},
		[]string{"table"},
	)

	PlaylistsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_playlists_total",
			Help: "Playlists processed by outcome.",
		},
		[]string{"outcome"},
	)
)

// ObserveCall records one API attempt.
func ObserveCall(endpoint string, status int, elapsed time.Duration) {
	APICalls.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// Serve exposes /metrics on addr until ctx is done. An empty addr is a no-op.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logging.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
}
