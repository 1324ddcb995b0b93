package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the default Prometheus registry on /metrics.
type MetricsServer struct {
	name string
	srv  *http.Server
}

// New creates a metrics server for addr. It does not start listening.
func New(name, addr string) (*MetricsServer, error) {
	if addr == "" {
		return nil, errors.New("metrics address is empty")
	}
	return NewWithGatherer(name, addr, prometheus.DefaultGatherer), nil
}

func NewWithGatherer(name, addr string, gatherer prometheus.Gatherer) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &MetricsServer{
		name: name,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *MetricsServer) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks until the server is shut down. It returns http.ErrServerClosed after Shutdown.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
