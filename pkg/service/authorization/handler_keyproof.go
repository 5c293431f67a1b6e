/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/keyproof"
)

type proofVerifier interface {
	Verify(raw, typ string, expect keyproof.Expectation) (*keyproof.Pop, error)
}

// keyProofHandler validates the holder-binding key proof(s) of a credential
// request and records the proven keys for the credential builder.
type keyProofHandler struct {
	NoopHandler

	proofs           proofVerifier
	config           *Config
	supportedFormats map[string]struct{}
}

// NewKeyProofHandler creates the key proof handler.
func NewKeyProofHandler(proofs proofVerifier, config *Config, formats ...string) Handler {
	supported := make(map[string]struct{}, len(formats))

	for _, f := range formats {
		supported[f] = struct{}{}
	}

	return &keyProofHandler{
		proofs:           proofs,
		config:           config,
		supportedFormats: supported,
	}
}

func (h *keyProofHandler) ProcessCredentialRequest(_ context.Context, req *Request, _ *Response, session *Session) error {
	if req.Credential == nil {
		return oidcerr.NewInvalidCredentialRequest("missing credential request body")
	}

	if _, ok := h.supportedFormats[req.Credential.Format]; !ok {
		return oidcerr.NewUnsupportedCredentialFormat("unsupported format")
	}

	rawProofs, err := collectProofs(req.Credential, h.config.MaxBatchSize)
	if err != nil {
		return err
	}

	expect, err := h.expectation(session)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(rawProofs))

	for _, raw := range rawProofs {
		pop, verifyErr := h.proofs.Verify(raw, keyproof.TypeKeyProof, expect)
		if verifyErr != nil {
			return oidcerr.NewInvalidProof("invalid key proof").WithErr(verifyErr)
		}

		rawKey, marshalErr := pop.Key.MarshalJSON()
		if marshalErr != nil {
			return oidcerrServer(marshalErr)
		}

		keys = append(keys, string(rawKey))
	}

	session.SetStringList(KeyVerifiedProofKeys, keys)

	return nil
}

func (h *keyProofHandler) expectation(session *Session) (keyproof.Expectation, error) {
	cNonce, err := session.CheckedParameter(KeyCNonce)
	if err != nil {
		return keyproof.Expectation{}, err
	}

	cNonceExpires, err := session.CheckedInstant(KeyCNonceExpires)
	if err != nil {
		return keyproof.Expectation{}, err
	}

	// Sessions started by a seed or refresh grant carry no client_id; the
	// iss claim is only enforced when one is bound.
	clientID, _ := session.OptionalParameter(KeyClientID)

	return keyproof.Expectation{
		Issuer:         clientID,
		Audience:       h.config.CredentialIssuerIdentifier(session.FlowVariant),
		NonceClaim:     keyproof.ClaimNonce,
		Nonce:          cNonce,
		NonceExpiresAt: cNonceExpires,
	}, nil
}

// collectProofs enforces the single-XOR-batch rule and the batch size limit.
func collectProofs(cred *CredentialRequest, maxBatchSize int) ([]string, error) {
	single := cred.Proof != nil
	batch := len(cred.Proofs) > 0

	switch {
	case single && batch:
		return nil, oidcerr.NewInvalidCredentialRequest("proof and proofs are mutually exclusive")
	case single:
		if cred.Proof.ProofType != "jwt" || cred.Proof.JWT == "" {
			return nil, oidcerr.NewInvalidCredentialRequest("invalid proof")
		}

		return []string{cred.Proof.JWT}, nil
	case batch:
		if len(cred.Proofs) > maxBatchSize {
			return nil, oidcerr.NewInvalidCredentialRequest("too many proofs")
		}

		for _, p := range cred.Proofs {
			if p == "" {
				return nil, oidcerr.NewInvalidCredentialRequest("invalid proof")
			}
		}

		return cred.Proofs, nil
	default:
		return nil, oidcerr.NewInvalidProof("proof missing")
	}
}
