// Package metrics exposes Prometheus collectors for the abuse-protection
// core and the chat stream.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors. Constructed once in main and passed to the
// handlers that record into it.
type Metrics struct {
	registry *prometheus.Registry

	RateLimitRejections *prometheus.CounterVec
	WAFMatches          *prometheus.CounterVec
	CaptchaOutcomes     *prometheus.CounterVec
	ActiveStreams       prometheus.Gauge
	StreamedTokens      prometheus.Counter
	StreamErrors        prometheus.Counter
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "babbelbox_ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter, by reason.",
		}, []string{"reason"}),
		WAFMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "babbelbox_waf_matches_total",
			Help: "WAF rule matches, by action and severity.",
		}, []string{"action", "severity"}),
		CaptchaOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "babbelbox_captcha_outcomes_total",
			Help: "Captcha verification outcomes.",
		}, []string{"outcome"}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "babbelbox_active_streams",
			Help: "Currently open SSE chat streams.",
		}),
		StreamedTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "babbelbox_streamed_tokens_total",
			Help: "Content tokens emitted over all streams.",
		}),
		StreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "babbelbox_stream_errors_total",
			Help: "Streams terminated with an in-band error event.",
		}),
	}
}

// Handler returns the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
