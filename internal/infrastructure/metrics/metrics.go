// Package metrics records verification outcomes and RPC latency.
package metrics

import "time"

// Metric names.
const (
	VerificationOutcome = "verification"
	TokenRedemption     = "redemption"
	RPCRequest          = "rpc_request"
	SweepRun            = "sweep"
)

// Label keys understood by the Prometheus recorder.
const (
	LabelChain   = "chain"
	LabelReason  = "reason"
	LabelOutcome = "outcome"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
