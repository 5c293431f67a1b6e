/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package healthutil augments the health checker with per-check response
// times surfaced in the /healthcheck response body.
package healthutil

import (
	"context"
	"sync"
	"time"

	"github.com/alexliesenfeld/health"
)

// ResponseTimeState tracks how fast a single health check responds. The
// average is a running mean over the last and current measurement.
type ResponseTimeState struct {
	LastResponseTime    time.Duration
	AverageResponseTime time.Duration
}

// ResponseTimeInterceptor measures each check invocation and records the
// result in the given map, keyed by check name.
func ResponseTimeInterceptor(states map[string]ResponseTimeState) health.Interceptor {
	var mu sync.Mutex

	return func(next health.InterceptorFunc) health.InterceptorFunc {
		return func(ctx context.Context, name string, state health.CheckState) health.CheckState {
			start := time.Now()
			result := next(ctx, name, state)
			elapsed := time.Since(start)

			mu.Lock()
			defer mu.Unlock()

			current, ok := states[name]
			if !ok {
				states[name] = ResponseTimeState{
					LastResponseTime:    elapsed,
					AverageResponseTime: elapsed,
				}

				return result
			}

			states[name] = ResponseTimeState{
				LastResponseTime:    elapsed,
				AverageResponseTime: (current.AverageResponseTime + elapsed) / 2,
			}

			return result
		}
	}
}
