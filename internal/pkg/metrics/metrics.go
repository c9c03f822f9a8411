// Package metrics exports draft engine counters to Prometheus.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "drafts"

// Save results.
const (
	SaveOK            = "ok"
	SaveTokenRejected = "token_rejected"
	SaveDisabled      = "disabled"
	SaveInvalid       = "invalid"
	SaveStorageError  = "storage_error"
)

// Discard reasons.
const (
	DiscardUser      = "user"
	DiscardPublished = "published"
	DiscardPurged    = "purged"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	savesTotal    *prometheus.CounterVec
	discardsTotal *prometheus.CounterVec
	movedTotal    prometheus.Counter
	httpHandled   *prometheus.CounterVec
}

func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return &Metrics{
		registry: reg,
		savesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "saves_total",
			Help:      "Draft save requests by result.",
		}, []string{"result"}),
		discardsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "discards_total",
			Help:      "Drafts discarded by reason.",
		}, []string{"reason"}),
		movedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "moved_total",
			Help:      "Drafts retargeted by document renames.",
		}),
		httpHandled: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "handled_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
	}, nil
}

func (m *Metrics) AddSave(result string) {
	if m == nil {
		return
	}
	m.savesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) AddDiscards(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.discardsTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) AddMoved(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.movedTotal.Add(float64(n))
}

func (m *Metrics) AddHTTPHandled(method, route string, code int) {
	if m == nil {
		return
	}
	m.httpHandled.WithLabelValues(method, route, fmt.Sprint(code)).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
