// Package metrics holds the Prometheus collectors for the verification
// pipeline. Collectors live on a private registry so that embedding
// applications keep control of the default one.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every claimcheck collector is registered on
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// CacheRequests counts cache lookups by type and outcome (hit, miss)
	CacheRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimcheck",
		Name:      "cache_requests_total",
		Help:      "Cache lookups by cache type and outcome.",
	}, []string{"type", "outcome"})

	// EmbeddingRequests counts provider calls by outcome (ok, retry, error)
	EmbeddingRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimcheck",
		Name:      "embedding_requests_total",
		Help:      "Embedding provider requests by outcome.",
	}, []string{"outcome"})

	// SourceFetches counts source fetches by source and status (ok, no_results, error)
	SourceFetches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimcheck",
		Name:      "source_fetches_total",
		Help:      "Scholarly source fetches by source and status.",
	}, []string{"source", "status"})

	// IngestedChunks counts chunks written to the evidence store by status
	IngestedChunks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimcheck",
		Name:      "ingested_chunks_total",
		Help:      "Evidence chunks written by status.",
	}, []string{"status"})

	// LLMRequests counts completion calls by model and outcome
	LLMRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimcheck",
		Name:      "llm_requests_total",
		Help:      "LLM completion requests by model and outcome.",
	}, []string{"model", "outcome"})

	// Verdicts counts final verdicts by label and decision path
	Verdicts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimcheck",
		Name:      "verdicts_total",
		Help:      "Verdicts by label and decision path.",
	}, []string{"label", "decision"})

	// DynamicFetches counts quality-gate trips that triggered a live fetch
	DynamicFetches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimcheck",
		Name:      "dynamic_fetches_total",
		Help:      "Dynamic fetch rounds by outcome (recovered, direct, exhausted).",
	}, []string{"outcome"})

	// StageDuration observes the latency of each pipeline stage
	StageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "claimcheck",
		Name:      "stage_duration_seconds",
		Help:      "Latency of verification pipeline stages.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 90},
	}, []string{"stage"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveStage records the time elapsed since start for stage
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler exposes Registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
