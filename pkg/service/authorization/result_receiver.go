/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/internal/logfields"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
)

// ResultReceiver accepts the asynchronous result of the external
// identification, correlated back to the session by the issuer state. It is
// the one pipeline step that does not arrive through the wallet.
type ResultReceiver struct {
	sessions *SessionManager
}

// NewResultReceiver creates a ResultReceiver.
func NewResultReceiver(sessions *SessionManager) *ResultReceiver {
	return &ResultReceiver{sessions: sessions}
}

// IdentificationSucceeded stores the validated identity data and advances the
// session to the finish-authorization step.
func (r *ResultReceiver) IdentificationSucceeded(ctx context.Context, issuerState string, data *identification.PersonalData) error {
	session, err := r.sessions.LoadByIssuerState(ctx, issuerState)
	if err != nil {
		return err
	}

	if !session.IsNextAllowedRequest(KindIdentificationResult) {
		return oidcerr.NewInvalidRequest("unexpected identification result")
	}

	rawData, err := data.Marshal()
	if err != nil {
		return oidcerrServer(err)
	}

	session.SetParameter(KeyIdentificationData, rawData)
	session.Remove(KeyIdentificationError)
	session.NextExpectedRequest = KindFinishAuthorization

	logger.Info("identification succeeded", logfields.WithSessionID(session.ID))

	return r.sessions.Persist(ctx, session)
}

// IdentificationFailed records the failure. The session still advances to
// finish-authorization, where the failure is delivered to the wallet's
// redirect URI.
func (r *ResultReceiver) IdentificationFailed(ctx context.Context, issuerState, reason string) error {
	session, err := r.sessions.LoadByIssuerState(ctx, issuerState)
	if err != nil {
		return err
	}

	if !session.IsNextAllowedRequest(KindIdentificationResult) {
		return oidcerr.NewInvalidRequest("unexpected identification result")
	}

	if reason == "" {
		reason = "identification failed"
	}

	session.SetParameter(KeyIdentificationError, reason)
	session.NextExpectedRequest = KindFinishAuthorization

	logger.Info("identification failed", logfields.WithSessionID(session.ID))

	return r.sessions.Persist(ctx, session)
}
