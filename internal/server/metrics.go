package server

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"archscore/internal/domain"
	"archscore/internal/engine"
)

type requestKeyLabels struct {
	method string
	status int
}

type requestStats struct {
	count   uint64
	seconds float64
}

// metrics accumulates per-request counters for the /metrics exposition.
type metrics struct {
	mu       sync.Mutex
	requests map[requestKeyLabels]*requestStats
}

func newMetrics() *metrics {
	return &metrics{requests: make(map[requestKeyLabels]*requestStats)}
}

func (m *metrics) observe(method string, status int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := requestKeyLabels{method: method, status: status}
	s, ok := m.requests[key]
	if !ok {
		s = &requestStats{}
		m.requests[key] = s
	}
	s.count++
	s.seconds += d.Seconds()
}

func (m *metrics) families() []*dto.MetricFamily {
	m.mu.Lock()
	keys := make([]requestKeyLabels, 0, len(m.requests))
	for k := range m.requests {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].status < keys[j].status
	})
	summary := &dto.MetricFamily{
		Name: ptr("archscore_http_request_duration_seconds"),
		Help: ptr("HTTP request latency by method and status."),
		Type: dto.MetricType_SUMMARY.Enum(),
	}
	for _, k := range keys {
		s := m.requests[k]
		summary.Metric = append(summary.Metric, &dto.Metric{
			Label: labels("method", k.method, "status", strconv.Itoa(k.status)),
			Summary: &dto.Summary{
				SampleCount: ptr(s.count),
				SampleSum:   ptr(s.seconds),
			},
		})
	}
	m.mu.Unlock()
	if len(summary.Metric) == 0 {
		return nil
	}
	return []*dto.MetricFamily{summary}
}

func ptr[T any](v T) *T { return &v }

// labels takes name, value pairs.
func labels(pairs ...string) []*dto.LabelPair {
	out := make([]*dto.LabelPair, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, &dto.LabelPair{Name: ptr(pairs[i]), Value: ptr(pairs[i+1])})
	}
	return out
}

func gauge(name, help string, v float64, lbls ...string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(name),
		Help: ptr(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Label: labels(lbls...),
			Gauge: &dto.Gauge{Value: ptr(v)},
		}},
	}
}

func appendGauge(mf *dto.MetricFamily, v float64, lbls ...string) {
	mf.Metric = append(mf.Metric, &dto.Metric{Label: labels(lbls...), Gauge: &dto.Gauge{Value: ptr(v)}})
}

// engineFamilies snapshots the store, rule registry and weights as gauges.
func engineFamilies(r *http.Request, e engine.Engine) ([]*dto.MetricFamily, error) {
	ctx := r.Context()
	totals, err := e.Repo.Totals(ctx)
	if err != nil {
		return nil, err
	}
	byType, err := e.Repo.CountByType(ctx)
	if err != nil {
		return nil, err
	}
	components := &dto.MetricFamily{
		Name: ptr("archscore_components"),
		Help: ptr("Stored components by type."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, t := range domain.ComponentTypes() {
		appendGauge(components, float64(byType[t]), "type", string(t))
	}

	stats := e.Rules.Registry.Stats()
	ruleFamily := &dto.MetricFamily{
		Name: ptr("archscore_rules"),
		Help: ptr("Registered connection rules by link type."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, lt := range domain.LinkTypes() {
		appendGauge(ruleFamily, float64(stats.CountsByType[lt]), "link_type", string(lt))
	}

	weights := e.Weights.Snapshot()
	weightFamily := &dto.MetricFamily{
		Name: ptr("archscore_parameter_weight"),
		Help: ptr("Current weight of each heuristic parameter."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, p := range domain.Parameters() {
		appendGauge(weightFamily, weights.Weight(p), "parameter", string(p))
	}

	return []*dto.MetricFamily{
		components,
		gauge("archscore_links", "Stored links.", float64(totals.Links)),
		gauge("archscore_architectures", "Stored architectures.", float64(totals.Architectures)),
		gauge("archscore_evaluations", "Recorded architecture evaluations.", float64(totals.Evaluations)),
		ruleFamily,
		weightFamily,
	}, nil
}

// registerMetrics serves a Prometheus text exposition at /metrics, outside
// the API base path.
func registerMetrics(router chi.Router, e engine.Engine, m *metrics) {
	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		families, err := engineFamilies(r, e)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		families = append(families, m.families()...)
		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				return
			}
		}
	})
}
