/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package healthutil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alexliesenfeld/health"
)

type checkerStatus struct {
	Status     health.AvailabilityStatus `json:"status"`
	Components map[string]componentState `json:"components,omitempty"`
}

type componentState struct {
	health.CheckResult
	LastResponseTime    string `json:"last_response_time,omitempty"`
	AverageResponseTime string `json:"avg_response_time,omitempty"`
}

// JSONResultWriter renders the checker result as JSON, merging in the
// response times collected by ResponseTimeInterceptor.
type JSONResultWriter struct {
	responseTimes map[string]ResponseTimeState
}

// NewJSONResultWriter creates a JSONResultWriter reading from the given
// response time map.
func NewJSONResultWriter(states map[string]ResponseTimeState) *JSONResultWriter {
	return &JSONResultWriter{responseTimes: states}
}

// Write implements health.ResultWriter.
func (w *JSONResultWriter) Write(result *health.CheckerResult, status int, rw http.ResponseWriter, _ *http.Request) error {
	body := &checkerStatus{Status: result.Status}

	if result.Details != nil {
		body.Components = make(map[string]componentState, len(*result.Details))

		for name, check := range *result.Details {
			component := componentState{CheckResult: check}

			if times, ok := w.responseTimes[name]; ok {
				component.LastResponseTime = times.LastResponseTime.String()
				component.AverageResponseTime = times.AverageResponseTime.String()
			}

			body.Components[name] = component
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal health status: %w", err)
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	_, err = rw.Write(raw)

	return err
}
