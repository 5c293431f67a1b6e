/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logfields

import (
	"time"

	"go.uber.org/zap"
)

// Log Fields.
const (
	FieldSessionID    = "sessionID"
	FieldFlowVariant  = "flowVariant"
	FieldRequestKind  = "requestKind"
	FieldIssuerState  = "issuerState"
	FieldClientID     = "clientID"
	FieldErrorCode    = "errorCode"
	FieldStore        = "store"
	FieldDeleted      = "deleted"
	FieldDuration     = "duration"
	FieldSweepTime    = "sweepTime"
	FieldHostURL      = "hostURL"
	FieldUserLogLevel = "userLogLevel"
)

// WithSessionID sets the SessionID field.
func WithSessionID(value string) zap.Field {
	return zap.String(FieldSessionID, value)
}

// WithFlowVariant sets the FlowVariant field.
func WithFlowVariant(value string) zap.Field {
	return zap.String(FieldFlowVariant, value)
}

// WithRequestKind sets the RequestKind field.
func WithRequestKind(value string) zap.Field {
	return zap.String(FieldRequestKind, value)
}

// WithIssuerState sets the IssuerState field.
func WithIssuerState(value string) zap.Field {
	return zap.String(FieldIssuerState, value)
}

// WithClientID sets the ClientID field.
func WithClientID(value string) zap.Field {
	return zap.String(FieldClientID, value)
}

// WithErrorCode sets the ErrorCode field.
func WithErrorCode(value string) zap.Field {
	return zap.String(FieldErrorCode, value)
}

// WithStore sets the Store field.
func WithStore(value string) zap.Field {
	return zap.String(FieldStore, value)
}

// WithDeleted sets the Deleted field.
func WithDeleted(value int64) zap.Field {
	return zap.Int64(FieldDeleted, value)
}

// WithDuration sets the Duration field.
func WithDuration(value time.Duration) zap.Field {
	return zap.Duration(FieldDuration, value)
}

// WithSweepTime sets the SweepTime field.
func WithSweepTime(value time.Duration) zap.Field {
	return zap.Duration(FieldSweepTime, value)
}

// WithHostURL sets the HostURL field.
func WithHostURL(value string) zap.Field {
	return zap.String(FieldHostURL, value)
}

// WithUserLogLevel sets the UserLogLevel field.
func WithUserLogLevel(value string) zap.Field {
	return zap.String(FieldUserLogLevel, value)
}
