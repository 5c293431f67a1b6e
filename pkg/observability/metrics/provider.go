/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"
)

// Logger used by the metrics providers.
var Logger = log.New("metrics-provider")

// Constants used by the metrics providers.
const (
	// Namespace Organization namespace.
	Namespace = "pidissuer"

	// Authorization flow operations.
	Authorization              = "authorization"
	RequestProcessedTimeMetric = "request_processed_seconds"
	RequestFailedCounterMetric = "request_failed_total"
	FlowLabel                  = "flow"
	RequestLabel               = "request"
)

// Metrics is the interface the authorization flows report into.
type Metrics interface {
	RequestProcessedTime(flow, kind string, duration time.Duration)
	RequestFailed(flow, kind string)
}
