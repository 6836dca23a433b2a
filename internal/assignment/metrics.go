package assignment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultAccepted            = "accepted"
	resultRejected            = "rejected"
	resultAtCapacity          = "at_capacity"
	resultUpstreamUnavailable = "upstream_unavailable"
	resultCancelled           = "cancelled"
	resultInternal            = "internal"
)

var (
	requestsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prover",
		Subsystem: "assignment",
		Name:      "requests_total",
		Help:      "Assignment requests by outcome",
	}, []string{"result"})

	requestDurationMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "prover",
		Subsystem: "assignment",
		Name:      "request_duration_seconds",
		Help:      "Time to decide and sign an assignment",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})
)
