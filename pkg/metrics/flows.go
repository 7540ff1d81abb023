package metrics

import "github.com/prometheus/client_golang/prometheus"

// FlowMetrics counts outcomes of the organization onboarding flows.
type FlowMetrics struct {
	outcomes *prometheus.CounterVec
	swallow  *prometheus.CounterVec
}

const (
	FlowResolve     = "resolve"
	FlowRegister    = "register"
	FlowInvite      = "invite"
	FlowAccept      = "accept"
	FlowBridge      = "bridge"
	FlowTriage      = "triage"
	FlowLogin       = "login"
	FlowSignedLogos = "logo_sign"
)

// NewFlowMetrics registers the flow metrics on the provided registerer.
func NewFlowMetrics(reg prometheus.Registerer) *FlowMetrics {
	if reg == nil {
		return &FlowMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharo_flow_outcomes_total",
		Help: "Completed onboarding flow invocations by outcome.",
	}, []string{"flow", "outcome"})
	swallow := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharo_flow_swallowed_errors_total",
		Help: "Best-effort steps that failed without aborting their flow.",
	}, []string{"flow", "step"})
	reg.MustRegister(outcomes, swallow)
	return &FlowMetrics{outcomes: outcomes, swallow: swallow}
}

// Outcome counts one flow result, e.g. ("resolve", "not_found").
func (f *FlowMetrics) Outcome(flow, outcome string) {
	if f == nil || f.outcomes == nil {
		return
	}
	f.outcomes.WithLabelValues(normalizeLabel(flow), normalizeLabel(outcome)).Inc()
}

// Swallowed counts a best-effort step failure.
func (f *FlowMetrics) Swallowed(flow, step string) {
	if f == nil || f.swallow == nil {
		return
	}
	f.swallow.WithLabelValues(normalizeLabel(flow), normalizeLabel(step)).Inc()
}
