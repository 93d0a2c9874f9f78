package light

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "light"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Sequence number of the latest trusted checkpoint.
	TrustedSequence metrics.Gauge
	// Epoch of the committee the client currently trusts.
	TrustedEpoch metrics.Gauge
	// Number of checkpoints applied.
	AppliedCheckpoints metrics.Counter
	// Number of checkpoints rejected, labeled by reason.
	RejectedCheckpoints metrics.Counter
	// Number of committee rotations adopted.
	CommitteeRotations metrics.Counter
	// Number of failed checkpoint fetches that were retried.
	FetchRetries metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		TrustedSequence: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "trusted_sequence",
			Help:      "Sequence number of the latest trusted checkpoint.",
		}, labels).With(labelsAndValues...),
		TrustedEpoch: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "trusted_epoch",
			Help:      "Epoch of the currently trusted committee.",
		}, labels).With(labelsAndValues...),
		AppliedCheckpoints: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "applied_checkpoints",
			Help:      "Number of checkpoints verified and applied.",
		}, labels).With(labelsAndValues...),
		RejectedCheckpoints: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rejected_checkpoints",
			Help:      "Number of checkpoints that failed verification.",
		}, append(labels, "reason")).With(labelsAndValues...),
		CommitteeRotations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "committee_rotations",
			Help:      "Number of epoch boundaries crossed.",
		}, labels).With(labelsAndValues...),
		FetchRetries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fetch_retries",
			Help:      "Number of checkpoint fetches retried after a transient failure.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		TrustedSequence:     discard.NewGauge(),
		TrustedEpoch:        discard.NewGauge(),
		AppliedCheckpoints:  discard.NewCounter(),
		RejectedCheckpoints: discard.NewCounter(),
		CommitteeRotations:  discard.NewCounter(),
		FetchRetries:        discard.NewCounter(),
	}
}

// rejectionReason is the "reason" label of RejectedCheckpoints.
func rejectionReason(err error) string {
	switch err.(type) {
	case ErrChainDiscontinuity:
		return "chain_discontinuity"
	case ErrSequenceGap:
		return "sequence_gap"
	case ErrCommitteeMismatch:
		return "committee_mismatch"
	case ErrDigestMismatch:
		return "digest_mismatch"
	case ErrQuorumNotMet:
		return "quorum_not_met"
	case ErrInvalidSignature:
		return "invalid_signature"
	}
	if IsVerificationError(err) {
		return "malformed_input"
	}
	return "other"
}
