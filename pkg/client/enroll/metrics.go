/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package enroll

import (
	"time"

	"github.com/nbrb/fabric-enroll/pkg/common/errors/status"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "fabric_enroll"

// Metrics contains the metrics recorded by the workflow
type Metrics struct {
	Runs     *prometheus.CounterVec
	Failures *prometheus.CounterVec
	CACalls  prometheus.Counter
	Retries  prometheus.Counter
	Duration prometheus.Histogram
}

// NewMetrics creates the workflow metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "The number of enrollment runs, by final state.",
		}, []string{"state"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failures_total",
			Help:      "The number of failed enrollment runs, by error kind.",
		}, []string{"group", "code"}),
		CACalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ca_calls_total",
			Help:      "The number of enroll requests sent to the CA.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ca_retries_total",
			Help:      "The number of enroll requests retried after a transport failure.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "The time to complete an enrollment run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{m.Runs, m.Failures, m.CACalls, m.Retries, m.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register enrollment metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observeRun(state State, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(state.String()).Inc()
	m.Duration.Observe(elapsed.Seconds())
	if err == nil {
		return
	}
	group, code := status.UnknownStatus, status.Unknown
	if s, ok := status.FromError(err); ok {
		group, code = s.Group, status.Code(s.Code)
	}
	m.Failures.WithLabelValues(group.String(), code.String()).Inc()
}

func (m *Metrics) caCall() {
	if m != nil {
		m.CACalls.Inc()
	}
}

func (m *Metrics) retry() {
	if m != nil {
		m.Retries.Inc()
	}
}
