package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	programUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procsup",
		Name:      "program_up",
		Help:      "Whether the program's process is confirmed running (1=running, 0=otherwise).",
	}, []string{"program"})

	programRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procsup",
		Name:      "program_restarts_total",
		Help:      "Total number of automatic restarts performed for each program.",
	}, []string{"program"})

	spawnFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procsup",
		Name:      "program_spawn_failures_total",
		Help:      "Total number of failed attempts to launch each program.",
	}, []string{"program"})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "procsup",
		Name:      "program_run_seconds",
		Help:      "How long program processes ran before exiting on their own.",
		Buckets:   []float64{0.5, 1, 5, 30, 60, 300, 1800, 3600, 86400},
	}, []string{"program"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procsup",
		Name:      "build_info",
		Help:      "Build metadata for the running procsup binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(programUp, programRestarts, spawnFailures, runDuration, buildInfo)
}

// Registry returns the Prometheus registry containing all procsup metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetProgramUp records whether a program is confirmed running.
func SetProgramUp(program string, up bool) {
	if program == "" {
		return
	}
	value := 0.0
	if up {
		value = 1.0
	}
	programUp.WithLabelValues(program).Set(value)
}

// IncrementProgramRestart counts one automatic restart.
func IncrementProgramRestart(program string) {
	if program == "" {
		return
	}
	programRestarts.WithLabelValues(program).Inc()
}

// IncrementSpawnFailure counts one failed launch.
func IncrementSpawnFailure(program string) {
	if program == "" {
		return
	}
	spawnFailures.WithLabelValues(program).Inc()
}

// ObserveRunDuration records how long a process ran before it exited.
func ObserveRunDuration(program string, d time.Duration) {
	label := program
	if label == "" {
		label = "unknown"
	}
	runDuration.WithLabelValues(label).Observe(d.Seconds())
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}

// ResetProgram drops every series of a program.
func ResetProgram(program string) {
	if program == "" {
		return
	}
	programUp.DeleteLabelValues(program)
	programRestarts.DeleteLabelValues(program)
	spawnFailures.DeleteLabelValues(program)
	runDuration.DeleteLabelValues(program)
}
