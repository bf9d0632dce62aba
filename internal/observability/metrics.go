package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"

	"github.com/formscout/formscout/internal/appid"
)

var (
	// TelemetrySystem routes lookup, HTTP and process metrics to the exporter.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the scrape endpoint the API proxies at /metrics.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// MetricsOptions configures the Prometheus exporter.
type MetricsOptions struct {
	// Namespace prefixes every exported metric name. Empty uses the
	// application's telemetry namespace.
	Namespace string
	// Port is the exporter's listen port; 0 binds a free port.
	Port int
}

// MetricsNamespace returns the prefix used when none is configured.
func MetricsNamespace() string {
	return appid.Get().TelemetryNamespace()
}

// InitMetrics starts the Prometheus exporter and installs TelemetrySystem.
// A previously started exporter is stopped first, so reinitializing in the
// same process does not leak a listener.
func InitMetrics(opts MetricsOptions) error {
	port := opts.Port
	if port < 0 {
		port = 0
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = MetricsNamespace()
	}

	if err := StopMetrics(); err != nil {
		return err
	}

	exporter := exporters.NewPrometheusExporter(namespace, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return err
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: exporter,
	})
	if err != nil {
		_ = exporter.Stop()
		return err
	}

	metricsPort = port
	if bound, err := resolvePort(exporter.GetAddr()); err == nil {
		metricsPort = bound
	}
	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// StopMetrics closes the exporter and disables metric emission.
func StopMetrics() error {
	exporter := PrometheusExporter
	PrometheusExporter = nil
	TelemetrySystem = nil
	metricsPort = 0
	if exporter == nil {
		return nil
	}
	return exporter.Stop()
}

// GetMetricsPort returns the port the exporter bound, or 0 when it is not
// running or the port could not be determined.
func GetMetricsPort() int {
	return metricsPort
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
