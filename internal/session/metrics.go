package session

import "time"

// Metrics is the narrow observability surface the router reports through.
// internal/metrics.Recorder implements it; a nil Metrics on Router falls
// back to noopMetrics so the router never has to nil-check at call sites.
type Metrics interface {
	IncRequest(provider, subtype string)
	IncPolicyDenial(provider, reason string)
	IncUnsupportedSubtype(provider, subtype string)
	IncReconnectAttempt(provider string)
	ObserveControlLatency(provider, subtype string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) IncRequest(string, string)                           {}
func (noopMetrics) IncPolicyDenial(string, string)                      {}
func (noopMetrics) IncUnsupportedSubtype(string, string)                {}
func (noopMetrics) IncReconnectAttempt(string)                          {}
func (noopMetrics) ObserveControlLatency(string, string, time.Duration) {}
