package cache

import "github.com/leonardcser/memo/internal/metrics"

// Metrics receives cache instrumentation. Implementations must be safe for
// concurrent use. namespace is empty for the root cache.
type Metrics interface {
	Lookup(namespace, op string, state State)
	DecodeFailed(namespace, op string)

	// WrapDuration times the computation run by a Wrap leader.
	WrapDuration(namespace string) metrics.Timer
	WrapCompleted(namespace string, coalesced, success bool)

	// CleanupRemoved counts entries removed by Cleanup; reason is
	// "expired" or "corrupt".
	CleanupRemoved(reason string, count int)
}

type nopMetrics struct{}

func (nopMetrics) Lookup(string, string, State)      {}
func (nopMetrics) DecodeFailed(string, string)       {}
func (nopMetrics) WrapDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) WrapCompleted(string, bool, bool)  {}
func (nopMetrics) CleanupRemoved(string, int)        {}

// NopMetrics returns a Metrics that discards everything.
func NopMetrics() Metrics { return nopMetrics{} }
