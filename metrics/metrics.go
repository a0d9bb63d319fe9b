package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records intake and randomization outcomes.
type Metrics interface {
	IncUploads(result string)
	IncIdentified(family string)
	IncRandomizations(family, status string)
	ObserveEngineDuration(family string, durationSeconds float64)
	IncDownloads(status string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncUploads(string)                     {}
func (Noop) IncIdentified(string)                  {}
func (Noop) IncRandomizations(string, string)      {}
func (Noop) ObserveEngineDuration(string, float64) {}
func (Noop) IncDownloads(string)                   {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	uploads        *prometheus.CounterVec
	identified     *prometheus.CounterVec
	randomizations *prometheus.CounterVec
	engineDuration *prometheus.HistogramVec
	downloads      *prometheus.CounterVec
}

// NewProm creates the collectors and registers them with reg, or with the
// default registerer when reg is nil.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "ROM uploads by result",
		}, []string{"result"}),
		identified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identified_total",
			Help:      "ROM identifications by game family",
		}, []string{"family"}),
		randomizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "randomizations_total",
			Help:      "Randomization requests by game family and status",
		}, []string{"family", "status"}),
		engineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_duration_seconds",
			Help:      "Wall time of randomizer engine runs",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"family"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Randomized ROM downloads by status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(p.uploads, p.identified, p.randomizations, p.engineDuration, p.downloads)
	return p
}

func (p *Prom) IncUploads(result string) {
	p.uploads.WithLabelValues(result).Inc()
}

func (p *Prom) IncIdentified(family string) {
	p.identified.WithLabelValues(family).Inc()
}

func (p *Prom) IncRandomizations(family, status string) {
	p.randomizations.WithLabelValues(family, status).Inc()
}

func (p *Prom) ObserveEngineDuration(family string, durationSeconds float64) {
	p.engineDuration.WithLabelValues(family).Observe(durationSeconds)
}

func (p *Prom) IncDownloads(status string) {
	p.downloads.WithLabelValues(status).Inc()
}

// Handler returns an HTTP handler for /metrics serving g, or the default gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
