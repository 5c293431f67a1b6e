/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package noop

import (
	"time"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/observability/metrics"
)

// GetMetrics returns a metrics implementation that discards everything.
func GetMetrics() metrics.Metrics {
	return &noopMetrics{}
}

type noopMetrics struct{}

func (m *noopMetrics) RequestProcessedTime(string, string, time.Duration) {}

func (m *noopMetrics) RequestFailed(string, string) {}
