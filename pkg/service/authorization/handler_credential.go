/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"

	"github.com/go-jose/go-jose/v3"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
)

type credentialBuilder interface {
	BuildCredential(ctx context.Context, format string, data *identification.PersonalData, holderKey *jose.JSONWebKey) (string, error)
}

// credentialHandler issues one credential per proven holder key. It runs
// after the key proof handler, which leaves the verified keys in the session.
type credentialHandler struct {
	NoopHandler

	builder credentialBuilder
}

// NewCredentialHandler creates the credential issuance handler.
func NewCredentialHandler(builder credentialBuilder) Handler {
	return &credentialHandler{builder: builder}
}

func (h *credentialHandler) ProcessCredentialRequest(ctx context.Context, req *Request, resp *Response, session *Session) error {
	rawData, err := session.CheckedParameter(KeyIdentificationData)
	if err != nil {
		return err
	}

	data, err := identification.ParseData(rawData)
	if err != nil {
		return oidcerrServer(err)
	}

	rawKeys, err := session.CheckedStringList(KeyVerifiedProofKeys)
	if err != nil {
		return err
	}

	credentials := make([]string, 0, len(rawKeys))

	for _, rawKey := range rawKeys {
		holderKey := &jose.JSONWebKey{}
		if err = holderKey.UnmarshalJSON([]byte(rawKey)); err != nil {
			return oidcerrServer(err)
		}

		credential, buildErr := h.builder.BuildCredential(ctx, req.Credential.Format, data, holderKey)
		if buildErr != nil {
			return oidcerr.NewServerError(buildErr)
		}

		credentials = append(credentials, credential)
	}

	if req.Credential.Proof != nil {
		resp.Put("credential", credentials[0])
	} else {
		resp.Put("credentials", credentials)
	}

	return nil
}
