// Package metrics exposes the progress and results of optimize runs as
// Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/commands"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
)

const namespace = "gridnav"

// Recorder is a pipeline observer feeding its own registry.
type Recorder struct {
	registry *prometheus.Registry

	commands   *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	running    *prometheus.GaugeVec
	throughput *prometheus.GaugeVec
	latency    *prometheus.GaugeVec
	correct    *prometheus.GaugeVec

	mu      sync.Mutex
	started map[string]bool
}

// NewRecorder creates a recorder with a fresh registry that also carries the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		started:  map[string]bool{},
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Number of finished commands by final status.",
		}, []string{"pipeline", "command", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall time of commands that ran.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"pipeline", "command"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commands_running",
			Help:      "Commands currently running.",
		}, []string{"pipeline"}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "variant_throughput_inferences_per_second",
			Help:      "Best measured throughput of a model variant.",
		}, []string{"variant", "batch_size"}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "variant_latency_milliseconds",
			Help:      "Steady-state latency of a model variant at its best batch size.",
		}, []string{"variant", "batch_size"}),
		correct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "variant_correct",
			Help:      "1 when the outputs of a variant are within tolerance, 0 otherwise.",
		}, []string{"variant"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.commands, r.durations, r.running, r.throughput, r.latency, r.correct,
	)
	return r
}

// Registry returns the registry the recorder writes to.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) CommandStarted(_ context.Context, pipeline, cmd string) {
	r.mu.Lock()
	r.started[cmd] = true
	r.mu.Unlock()
	r.running.WithLabelValues(pipeline).Inc()
}

func (r *Recorder) CommandFinished(ctx context.Context, pipeline string, result command.Result) {
	r.commands.WithLabelValues(pipeline, result.Name, string(result.Status)).Inc()

	r.mu.Lock()
	started := r.started[result.Name]
	delete(r.started, result.Name)
	r.mu.Unlock()
	if !started {
		return
	}
	r.running.WithLabelValues(pipeline).Dec()
	r.durations.WithLabelValues(pipeline, result.Name).Observe(result.Duration.Seconds())

	for _, v := range result.Output {
		switch rep := v.(type) {
		case commands.PerformanceReport:
			best, ok := rep.Best()
			if !ok {
				continue
			}
			bs := strconv.Itoa(best.BatchSize)
			r.throughput.WithLabelValues(rep.Variant.String(), bs).Set(best.Throughput)
			r.latency.WithLabelValues(rep.Variant.String(), bs).Set(best.LatencyMs)
		case commands.CorrectnessReport:
			value := 0.0
			if rep.Passed {
				value = 1
			}
			r.correct.WithLabelValues(rep.Variant.String()).Set(value)
		}
	}
	ctxlog.FromContext(ctx).Debug("Recorded command metrics.", "pipeline", pipeline, "command", result.Name)
}
