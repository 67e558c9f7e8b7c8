// Package metrics exposes OpenTelemetry metrics on a Prometheus /metrics endpoint.
package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Config struct {
	Host string `envconfig:"METRICS_HOST"`
	// Port 0 turns metrics off.
	Port        int           `envconfig:"METRICS_PORT" default:"0"`
	ReadTimeout time.Duration `envconfig:"METRICS_READ_TIMEOUT" default:"30s"`
}

func (c Config) Enabled() bool {
	return c.Port > 0
}

type Metrics struct {
	config   Config
	server   *http.Server
	provider *sdkmetric.MeterProvider
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitDefault installs the Prometheus meter provider and starts the /metrics
// server. With metrics off it returns a no-op closer.
func InitDefault(config Config) (io.Closer, error) {
	if !config.Enabled() {
		return nopCloser{}, nil
	}

	provider := New(config)
	if err := provider.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start metrics server")
	}

	return provider, nil
}

func New(config Config) *Metrics {
	return &Metrics{
		config: config,
		server: NewHttpServer(config),
	}
}

// Start binds the listener before returning, so a busy port is reported here.
func (s *Metrics) Start() error {
	provider, err := InitPrometheus()
	if err != nil {
		return errors.Wrap(err, "failed to init prometheus")
	}
	s.provider = provider

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.server.Addr)
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Default().Warn("metrics server failed", "error", err.Error())
		}
	}()

	slog.Default().Info("metrics server started", "addr", listener.Addr().String())
	return nil
}

func (s *Metrics) Close() error {
	err := s.server.Close()
	if s.provider != nil {
		if shutdownErr := s.provider.Shutdown(context.Background()); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}
	return errors.Wrap(err, "failed to close metrics")
}

func NewHttpServer(conf Config) *http.Server {
	r := http.NewServeMux()
	r.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Handler:           r,
		ReadTimeout:       conf.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
