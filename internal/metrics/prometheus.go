package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shortener"

// Collector отдаёт Registry в формате Prometheus. Значения читаются из снимка при каждом scrape
type Collector struct {
	reg *Registry

	globalCapacity *prometheus.Desc
	globalTokens   *prometheus.Desc
	activeClients  *prometheus.Desc
	linksStored    *prometheus.Desc
	linksResolved  *prometheus.Desc
	decisions      *prometheus.Desc
}

// NewCollector создаёт коллектор над реестром
func NewCollector(reg *Registry) *Collector {
	return &Collector{
		reg:            reg,
		globalCapacity: prometheus.NewDesc(namespace+"_global_bucket_capacity", "Capacity of the global token bucket.", nil, nil),
		globalTokens:   prometheus.NewDesc(namespace+"_global_bucket_tokens", "Tokens currently available in the global bucket.", nil, nil),
		activeClients:  prometheus.NewDesc(namespace+"_active_clients", "Clients with a live token bucket.", nil, nil),
		linksStored:    prometheus.NewDesc(namespace+"_links_stored_total", "Short links stored.", nil, nil),
		linksResolved:  prometheus.NewDesc(namespace+"_links_resolved_total", "Short links resolved to their target.", nil, nil),
		decisions:      prometheus.NewDesc(namespace+"_limiter_decisions_total", "Rate limiter decisions by outcome.", []string{"outcome"}, nil),
	}
}

// Describe см. prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.globalCapacity
	ch <- c.globalTokens
	ch <- c.activeClients
	ch <- c.linksStored
	ch <- c.linksResolved
	ch <- c.decisions
}

// Collect см. prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.reg.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.globalCapacity, prometheus.GaugeValue, float64(s.GlobalCapacity))
	ch <- prometheus.MustNewConstMetric(c.globalTokens, prometheus.GaugeValue, float64(s.GlobalTokensAvailable))
	ch <- prometheus.MustNewConstMetric(c.activeClients, prometheus.GaugeValue, float64(s.ActiveClientCount))
	ch <- prometheus.MustNewConstMetric(c.linksStored, prometheus.CounterValue, float64(s.TotalLinksStored))
	ch <- prometheus.MustNewConstMetric(c.linksResolved, prometheus.CounterValue, float64(s.LinksResolved))
	ch <- prometheus.MustNewConstMetric(c.decisions, prometheus.CounterValue, float64(s.Admitted), "admitted")
	ch <- prometheus.MustNewConstMetric(c.decisions, prometheus.CounterValue, float64(s.GlobalRejected), "global_rejected")
	ch <- prometheus.MustNewConstMetric(c.decisions, prometheus.CounterValue, float64(s.ClientRejected), "client_rejected")
}

// HTTPMetrics метрики HTTP запросов для middleware логирования
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Observe записывает завершённый запрос. route шаблон маршрута, а не реальный путь
func (m *HTTPMetrics) Observe(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Exporter собственный prometheus.Registry сервиса
type Exporter struct {
	registry *prometheus.Registry
	HTTP     *HTTPMetrics
}

// NewExporter регистрирует коллектор реестра, HTTP метрики и стандартные go/process коллекторы
func NewExporter(reg *Registry) *Exporter {
	pr := prometheus.NewRegistry()

	httpMetrics := &HTTPMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	pr.MustRegister(
		NewCollector(reg),
		httpMetrics.requests,
		httpMetrics.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Exporter{registry: pr, HTTP: httpMetrics}
}

// Handler обработчик /metrics
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Gatherer для тестов и встраивания
func (e *Exporter) Gatherer() prometheus.Gatherer {
	return e.registry
}
