/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tracing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/observability/tracing"
)

func TestInitialize(t *testing.T) {
	t.Run("no exporter", func(t *testing.T) {
		provider, shutdown, err := tracing.Initialize(tracing.None, "pid-issuer")
		require.NoError(t, err)
		require.Nil(t, provider)
		require.NotPanics(t, shutdown)
	})

	t.Run("stdout exporter", func(t *testing.T) {
		provider, shutdown, err := tracing.Initialize(tracing.Stdout, "pid-issuer")
		require.NoError(t, err)
		require.NotNil(t, provider)

		shutdown()
	})

	t.Run("jaeger exporter without endpoint", func(t *testing.T) {
		_, _, err := tracing.Initialize(tracing.Jaeger, "pid-issuer")
		require.ErrorContains(t, err, "neither agent nor collector endpoint")
	})

	t.Run("unsupported exporter", func(t *testing.T) {
		_, _, err := tracing.Initialize("ZIPKIN", "pid-issuer")
		require.ErrorContains(t, err, "unsupported exporter type")
	})
}
