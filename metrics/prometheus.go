package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PrometheusCollector struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	summaries  map[string]*prometheus.SummaryVec
	mu         sync.Mutex
	namespace  string
}

func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		summaries:  make(map[string]*prometheus.SummaryVec),
		namespace:  namespace,
	}
}

// Registry exposes the underlying registry, mainly for tests and extra collectors.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusCollector) IncrementCounter(ctx context.Context, name string, labels map[string]string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	counter, exists := p.counters[name]
	if !exists {
		return
	}

	counter.With(labels).Add(value)
}

func (p *PrometheusCollector) SetGauge(ctx context.Context, name string, labels map[string]string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	gauge, exists := p.gauges[name]
	if !exists {
		return
	}

	gauge.With(labels).Set(value)
}

func (p *PrometheusCollector) ObserveHistogram(ctx context.Context, name string, labels map[string]string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	histogram, exists := p.histograms[name]
	if !exists {
		return
	}

	histogram.With(labels).Observe(value)
}

func (p *PrometheusCollector) ObserveSummary(ctx context.Context, name string, labels map[string]string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	summary, exists := p.summaries[name]
	if !exists {
		return
	}

	summary.With(labels).Observe(value)
}

// RegisterCustomMetrics registers each metric once. Registering a name that
// already exists with the same definition is a no-op, so several listeners
// can share one collector.
func (p *PrometheusCollector) RegisterCustomMetrics(metrics ...CustomMetric) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, metric := range metrics {
		if p.exists(metric) {
			continue
		}

		var collector prometheus.Collector

		switch metric.Type {
		case Counter:
			counter := prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: p.namespace,
					Name:      metric.Name,
					Help:      metric.Description,
				},
				metric.Labels,
			)
			collector = counter

		case Gauge:
			gauge := prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: p.namespace,
					Name:      metric.Name,
					Help:      metric.Description,
				},
				metric.Labels,
			)
			collector = gauge

		case Histogram:
			buckets := metric.Buckets
			if len(buckets) == 0 {
				buckets = prometheus.DefBuckets
			}

			histogram := prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: p.namespace,
					Name:      metric.Name,
					Help:      metric.Description,
					Buckets:   buckets,
				},
				metric.Labels,
			)
			collector = histogram

		case Summary:
			summary := prometheus.NewSummaryVec(
				prometheus.SummaryOpts{
					Namespace: p.namespace,
					Name:      metric.Name,
					Help:      metric.Description,
				},
				metric.Labels,
			)
			collector = summary
		}

		if collector == nil {
			return fmt.Errorf("unknown metric type %d for %s", metric.Type, metric.Name)
		}

		if err := p.registry.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
			collector = are.ExistingCollector
		}

		switch c := collector.(type) {
		case *prometheus.CounterVec:
			p.counters[metric.Name] = c
		case *prometheus.GaugeVec:
			p.gauges[metric.Name] = c
		case *prometheus.HistogramVec:
			p.histograms[metric.Name] = c
		case *prometheus.SummaryVec:
			p.summaries[metric.Name] = c
		}
	}

	return nil
}

func (p *PrometheusCollector) exists(metric CustomMetric) bool {
	switch metric.Type {
	case Counter:
		_, ok := p.counters[metric.Name]
		return ok
	case Gauge:
		_, ok := p.gauges[metric.Name]
		return ok
	case Histogram:
		_, ok := p.histograms[metric.Name]
		return ok
	case Summary:
		_, ok := p.summaries[metric.Name]
		return ok
	}
	return false
}

func (p *PrometheusCollector) GetMetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		DisableCompression: true, // Disable gzip compression to avoid garbled output
	})
}
