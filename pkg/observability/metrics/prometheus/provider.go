/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/internal/logfields"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/observability/metrics"
)

var logger = metrics.Logger

var (
	createOnce sync.Once       //nolint:gochecknoglobals
	instance   metrics.Metrics //nolint:gochecknoglobals
)

// GetMetrics returns the shared prometheus metrics instance.
func GetMetrics() metrics.Metrics {
	createOnce.Do(func() {
		instance = NewMetrics()
	})

	return instance
}

// PromMetrics records authorization flow metrics into prometheus.
type PromMetrics struct {
	requestProcessedTime *prometheus.HistogramVec
	requestFailed        *prometheus.CounterVec
}

// NewMetrics creates an instance of prometheus metrics.
func NewMetrics() metrics.Metrics {
	pm := &PromMetrics{
		requestProcessedTime: newRequestProcessedTime(),
		requestFailed:        newRequestFailed(),
	}

	prometheus.MustRegister(pm.requestProcessedTime, pm.requestFailed)

	return pm
}

// RequestProcessedTime records the processing time of one flow request.
func (pm *PromMetrics) RequestProcessedTime(flow, kind string, duration time.Duration) {
	pm.requestProcessedTime.
		WithLabelValues(flow, kind).
		Observe(duration.Seconds())

	logger.Debug("request processed", logfields.WithDuration(duration))
}

// RequestFailed counts a failed flow request.
func (pm *PromMetrics) RequestFailed(flow, kind string) {
	pm.requestFailed.WithLabelValues(flow, kind).Inc()
}

func newRequestProcessedTime() *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: metrics.Authorization,
		Name:      metrics.RequestProcessedTimeMetric,
		Help:      "The time it takes to process an authorization flow request.",
	}, []string{metrics.FlowLabel, metrics.RequestLabel})
}

func newRequestFailed() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: metrics.Authorization,
		Name:      metrics.RequestFailedCounterMetric,
		Help:      "The number of failed authorization flow requests.",
	}, []string{metrics.FlowLabel, metrics.RequestLabel})
}
