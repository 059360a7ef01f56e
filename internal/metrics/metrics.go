// Package metrics exports Prometheus metrics for the reader site and the CMS.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kjtimes"

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Editor
	ArticleSaves  *prometheus.CounterVec
	AutoSaves     *prometheus.CounterVec
	DraftSessions prometheus.Gauge

	// Reader
	ArticleViews prometheus.Counter
	CacheLookups *prometheus.CounterVec

	// Ingest
	NewsReceived *prometheus.CounterVec
}

// New registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
		ArticleSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "article_saves_total",
			Help:      "Manual article saves by result",
		}, []string{"result"}),
		AutoSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "article_autosaves_total",
			Help:      "Auto-save attempts by result",
		}, []string{"result"}),
		DraftSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "draft_sessions",
			Help:      "Open editor draft sessions",
		}),
		ArticleViews: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "article_views_total",
			Help:      "Article detail page views",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Page cache lookups by result",
		}, []string{"result"}),
		NewsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "news_received_total",
			Help:      "Pushed news factory articles by result",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveSave counts one editor save. Auto-saves go to article_autosaves_total
// and manual saves to article_saves_total. It plugs into
// article.AutoSaveOptions.OnResult.
func (m *Metrics) ObserveSave(auto bool, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	if auto {
		m.AutoSaves.WithLabelValues(result).Inc()
		return
	}
	m.ArticleSaves.WithLabelValues(result).Inc()
}

// ObserveManualSave counts a save made outside a draft session.
func (m *Metrics) ObserveManualSave(err error) {
	m.ObserveSave(false, err)
}

// CacheResult counts a cache hit or miss.
func (m *Metrics) CacheResult(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// ArticleViewed counts one article page view.
func (m *Metrics) ArticleViewed() {
	if m == nil {
		return
	}
	m.ArticleViews.Inc()
}

// SetDraftSessions records the number of open draft sessions.
func (m *Metrics) SetDraftSessions(n int) {
	if m == nil {
		return
	}
	m.DraftSessions.Set(float64(n))
}

// Received counts one pushed news article by result.
func (m *Metrics) Received(result string) {
	if m == nil {
		return
	}
	m.NewsReceived.WithLabelValues(result).Inc()
}
