package monitoring

import (
	"context"
	"fmt"
	"net/http"

	"github.com/briefcase-hq/briefcase/pkg/logger"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "briefcase"

// Service owns the meter provider and the Prometheus registry backing /metrics.
type Service struct {
	meter       metric.Meter
	provider    *sdkmetric.MeterProvider
	registry    *prom.Registry
	initialized bool
}

// NewDisabledService returns a service whose instruments are no-ops.
func NewDisabledService() *Service {
	return &Service{meter: noop.NewMeterProvider().Meter(meterName)}
}

// NewMonitoringService creates a monitoring service with a Prometheus exporter.
func NewMonitoringService(ctx context.Context) (*Service, error) {
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	logger.FromContext(ctx).Debug("Monitoring service initialized")
	return &Service{
		meter:       provider.Meter(meterName),
		provider:    provider,
		registry:    registry,
		initialized: true,
	}, nil
}

// Meter returns the OpenTelemetry meter for custom instrumentation
func (s *Service) Meter() metric.Meter {
	return s.meter
}

// ExporterHandler returns an HTTP handler for the /metrics endpoint
func (s *Service) ExporterHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.initialized {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte("Monitoring service not initialized")); err != nil {
				logger.FromContext(r.Context()).Error("Failed to write response", "error", err)
			}
			return
		}
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// Shutdown flushes and stops the meter provider.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider != nil {
		return s.provider.Shutdown(ctx)
	}
	return nil
}

func (s *Service) IsInitialized() bool {
	return s.initialized
}

// SetAsGlobal sets this monitoring service's provider as the global OpenTelemetry meter provider
func (s *Service) SetAsGlobal() {
	if s.provider != nil {
		otel.SetMeterProvider(s.provider)
	}
}
