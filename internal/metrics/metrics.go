// Package metrics owns the process's private Prometheus registry and
// implements the small recording interfaces the build and load pipelines
// depend on.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/tmodkit/internal/version"
)

const namespace = "tmodkit"

type Recorder struct {
	reg     *prometheus.Registry
	handler http.Handler

	buildInfo *prometheus.GaugeVec

	buildsTotal       *prometheus.CounterVec
	scriptsRejected   prometheus.Counter
	shadersResolved   *prometheus.CounterVec
	componentsRemoved *prometheus.CounterVec
	filterErrors      *prometheus.CounterVec
	packagesLoaded    *prometheus.CounterVec
	lightmapBindings  *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	releasePolls      *prometheus.CounterVec

	// ops http
	inflight  prometheus.Gauge
	reqTotal  *prometheus.CounterVec
	reqDur    *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
}

// New returns a fresh registry with the Go and process collectors and
// every tmodkit series registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Recorder{
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		buildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Package builds by result (ok, compile_failed, error)",
		}, []string{"result"}),
		scriptsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scripts_rejected_total",
			Help:      "Scripts dropped from a build by the script scanner",
		}),
		shadersResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shaders_resolved_total",
			Help:      "Shader descriptors resolved at load, by method (exact, fallback, default)",
		}, []string{"via"}),
		componentsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "components_removed_total",
			Help:      "Components destroyed by the load-time filter, by reason",
		}, []string{"reason"}),
		filterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_errors_total",
			Help:      "Filter check steps that failed or panicked, by step",
		}, []string{"step"}),
		packagesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_loaded_total",
			Help:      "Packages processed by the loader, by result (ok, skipped, abandoned)",
		}, []string{"result"}),
		lightmapBindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lightmap_bindings_total",
			Help:      "Lightmap node bindings by result (exact, name_search, missing)",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"pipeline", "stage"}),
		releasePolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "release_polls_total",
			Help:      "Release pointer polls by result (unchanged, updated, ssm_error, fetch_error, apply_error)",
		}, []string{"result"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.buildInfo,
		m.buildsTotal,
		m.scriptsRejected,
		m.shadersResolved,
		m.componentsRemoved,
		m.filterErrors,
		m.packagesLoaded,
		m.lightmapBindings,
		m.stageDuration,
		m.releasePolls,
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *Recorder) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *Recorder) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *Recorder) BuildFinished(result string) {
	m.buildsTotal.WithLabelValues(result).Inc()
}

func (m *Recorder) ScriptRejected() {
	m.scriptsRejected.Inc()
}

func (m *Recorder) ShaderResolved(via string) {
	m.shadersResolved.WithLabelValues(via).Inc()
}

func (m *Recorder) ComponentRemoved(reason string) {
	m.componentsRemoved.WithLabelValues(reason).Inc()
}

func (m *Recorder) FilterError(step string) {
	m.filterErrors.WithLabelValues(step).Inc()
}

func (m *Recorder) PackageLoaded(result string) {
	m.packagesLoaded.WithLabelValues(result).Inc()
}

func (m *Recorder) LightmapBinding(result string) {
	m.lightmapBindings.WithLabelValues(result).Inc()
}

func (m *Recorder) StageDuration(pipeline, stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(pipeline, stage).Observe(d.Seconds())
}

func (m *Recorder) ReleasePoll(result string) {
	m.releasePolls.WithLabelValues(result).Inc()
}
