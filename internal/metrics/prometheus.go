package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dispatch"

// PrometheusRecorder implements Recorder using Prometheus collectors.
type PrometheusRecorder struct {
	scanDuration prom.Histogram
	scanDocs     prom.Gauge
	stepDuration *prom.HistogramVec
	transitions  *prom.CounterVec
	gitCommands  *prom.CounterVec
}

// NewPrometheusRecorder creates the collectors and registers them on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		scanDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of full vault scans",
			Buckets:   prom.DefBuckets,
		}),
		scanDocs: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_documents",
			Help:      "Documents returned by the last vault scan",
		}),
		stepDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_step_duration_seconds",
			Help:      "Duration of individual publish and unpublish steps",
			Buckets:   prom.DefBuckets,
		}, []string{"op", "step"}),
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Publish and unpublish outcomes",
		}, []string{"op", "result"}),
		gitCommands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "git_commands_total",
			Help:      "git subprocess invocations by subcommand and result",
		}, []string{"subcommand", "result"}),
	}
	reg.MustRegister(pr.scanDuration, pr.scanDocs, pr.stepDuration, pr.transitions, pr.gitCommands)
	return pr
}

func (p *PrometheusRecorder) ObserveScan(d time.Duration, documents int) {
	if p == nil {
		return
	}
	p.scanDuration.Observe(d.Seconds())
	p.scanDocs.Set(float64(documents))
}

func (p *PrometheusRecorder) ObserveStepDuration(op, step string, d time.Duration) {
	if p == nil {
		return
	}
	p.stepDuration.WithLabelValues(op, step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTransition(op, result string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(op, result).Inc()
}

func (p *PrometheusRecorder) IncGitCommand(subcommand string, success bool) {
	if p == nil {
		return
	}
	res := ResultFailed
	if success {
		res = ResultSuccess
	}
	p.gitCommands.WithLabelValues(subcommand, res).Inc()
}

// Handler serves the metrics registered on reg.
func Handler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
