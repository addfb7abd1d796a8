// Package metrics implements internal/session.Metrics against Prometheus
// client_golang, and pushes the same counters to an OTLP-shaped HTTP
// collector on an interval (spec §4.11).
package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements internal/session.Metrics (and backs the /metrics
// endpoint). Grounded on the "/metrics" -> promhttp.Handler() wiring found
// in the example pack's loom API server.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal           *prometheus.CounterVec
	reconnectAttemptsTotal  *prometheus.CounterVec
	policyDenialsTotal      *prometheus.CounterVec
	unsupportedSubtypeTotal *prometheus.CounterVec
	controlLatencyMs        *prometheus.HistogramVec
}

// NewRecorder builds a Recorder and registers its collectors on a fresh
// registry (kept separate from the default global registry so tests never
// collide on repeated registration).
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Control requests dispatched, by provider and subtype.",
		}, []string{"provider", "subtype"}),
		reconnectAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_reconnect_attempts_total",
			Help: "Initialize calls that reused an existing session's adapter for the same provider.",
		}, []string{"provider"}),
		policyDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_policy_denials_total",
			Help: "Requests rejected by a policy check, by provider and reason.",
		}, []string{"provider", "reason"}),
		unsupportedSubtypeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_unsupported_subtype_total",
			Help: "Control requests rejected because the adapter does not support the subtype.",
		}, []string{"provider", "subtype"}),
		controlLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_control_response_latency_ms",
			Help:    "Latency between a control_request being dispatched and its response, in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"provider", "subtype"}),
	}

	reg.MustRegister(
		r.requestsTotal,
		r.reconnectAttemptsTotal,
		r.policyDenialsTotal,
		r.unsupportedSubtypeTotal,
		r.controlLatencyMs,
	)
	return r
}

func (r *Recorder) IncRequest(provider, subtype string) {
	r.requestsTotal.WithLabelValues(provider, subtype).Inc()
}

func (r *Recorder) IncPolicyDenial(provider, reason string) {
	r.policyDenialsTotal.WithLabelValues(provider, reason).Inc()
}

func (r *Recorder) IncUnsupportedSubtype(provider, subtype string) {
	r.unsupportedSubtypeTotal.WithLabelValues(provider, subtype).Inc()
}

func (r *Recorder) IncReconnectAttempt(provider string) {
	r.reconnectAttemptsTotal.WithLabelValues(provider).Inc()
}

func (r *Recorder) ObserveControlLatency(provider, subtype string, d time.Duration) {
	r.controlLatencyMs.WithLabelValues(provider, subtype).Observe(float64(d.Milliseconds()))
}

// Handler returns the /metrics HTTP handler serving this recorder's
// registry in the Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gather snapshots every registered metric family, for the OTLP pusher.
func (r *Recorder) Gather() ([]*dto.MetricFamily, error) {
	return r.registry.Gather()
}

// otlpPoint is one flattened counter/histogram-sum data point in the
// bespoke OTLP-JSON shape this gateway pushes (spec §4.11: no pack example
// reaches for a full OTLP exporter SDK, so this is plain net/http — see
// DESIGN.md).
type otlpPoint struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type otlpPush struct {
	TimestampUnixNano int64       `json:"timestampUnixNano"`
	Metrics           []otlpPoint `json:"metrics"`
}

// Pusher periodically POSTs a flattened snapshot of every counter/histogram
// sum to an OTLP-shaped collector endpoint.
type Pusher struct {
	Recorder *Recorder
	Endpoint string
	Interval time.Duration
	Client   *http.Client
}

// NewPusher builds a Pusher targeting endpoint. If endpoint is empty, Run
// returns immediately: the OTLP push is opt-in (spec §4.11).
func NewPusher(recorder *Recorder, endpoint string, interval time.Duration) *Pusher {
	return &Pusher{
		Recorder: recorder,
		Endpoint: endpoint,
		Interval: interval,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Run pushes a snapshot every Interval until ctx is cancelled.
func (p *Pusher) Run(ctx context.Context) {
	if p.Endpoint == "" {
		return
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.push(ctx)
		}
	}
}

func (p *Pusher) push(ctx context.Context) {
	families, err := p.Recorder.Gather()
	if err != nil {
		return
	}

	points := make([]otlpPoint, 0, len(families))
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			attrs := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				attrs[lp.GetName()] = lp.GetValue()
			}
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				value = m.GetHistogram().GetSampleSum()
			default:
				continue
			}
			points = append(points, otlpPoint{Name: fam.GetName(), Value: value, Attributes: attrs})
		}
	}

	body, err := json.Marshal(otlpPush{TimestampUnixNano: time.Now().UnixNano(), Metrics: points})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}
