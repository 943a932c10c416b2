// Package metrics exports variable resolution activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

const namespace = "lattice"

// Collector implements variables.Observer on its own Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	CacheLookups *prometheus.CounterVec
	Cycles       *prometheus.CounterVec
	Resolutions  *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
}

var _ variables.Observer = (*Collector)(nil)

// NewCollector creates a Collector with its own Prometheus registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "variables",
			Name:      "cache_lookups_total",
			Help:      "Resolution cache lookups by outcome (hit, miss, shared)",
		}, []string{"variable", "result"}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "variables",
			Name:      "cycles_total",
			Help:      "Nested references cut because they formed a dependency cycle",
		}, []string{"variable"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "variables",
			Name:      "resolutions_total",
			Help:      "Resolver invocations by status",
		}, []string{"variable", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "variables",
			Name:      "resolution_duration_seconds",
			Help:      "Duration of resolver invocations in seconds, dependencies included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"variable"}),
	}
	reg.MustRegister(c.CacheLookups, c.Cycles, c.Resolutions, c.Duration)
	return c
}

// Registry exposes the underlying registry, e.g. to add process collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) CacheHit(name string) {
	c.CacheLookups.WithLabelValues(name, "hit").Inc()
}

func (c *Collector) CacheMiss(name string) {
	c.CacheLookups.WithLabelValues(name, "miss").Inc()
}

func (c *Collector) CacheShared(name string) {
	c.CacheLookups.WithLabelValues(name, "shared").Inc()
}

func (c *Collector) CycleDetected(name string) {
	c.Cycles.WithLabelValues(name).Inc()
}

func (c *Collector) Resolved(name string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Resolutions.WithLabelValues(name, status).Inc()
	c.Duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// Handler returns an HTTP handler that serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. ready, when not nil,
// receives the bound address once the listener is up.
func (c *Collector) Serve(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if ready != nil {
		ready(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: serve: %w", err)
	}
}
