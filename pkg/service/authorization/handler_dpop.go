/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
	"errors"
	"net/url"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/dpop"
)

type dpopValidator interface {
	Parse(compact string) (*dpop.Proof, error)
	VerifyClaims(proof *dpop.Proof, method string, requestURL *url.URL, accessToken string) error
}

// dpopHandler enforces the proof-of-possession protocol on every token-ish
// and credential-ish request. On success the proving key is bound to the
// session and a fresh nonce for the next step travels in the DPoP-Nonce
// header; nonce writes share the pipeline's guaranteed session persist.
type dpopHandler struct {
	NoopHandler

	validator dpopValidator
	nonces    *NonceService
}

// NewDPoPHandler creates the DPoP handler.
func NewDPoPHandler(validator dpopValidator, nonces *NonceService) Handler {
	return &dpopHandler{validator: validator, nonces: nonces}
}

func (h *dpopHandler) ProcessTokenRequest(_ context.Context, req *Request, resp *Response, session *Session) error {
	return h.validate(req, resp, session, validateOpts{requireNonce: true})
}

func (h *dpopHandler) ProcessRefreshTokenRequest(_ context.Context, req *Request, resp *Response, session *Session) error {
	return h.validate(req, resp, session, validateOpts{requireNonce: true})
}

// ProcessSeedTokenRequest applies the full nonce handshake. The session is
// correlated by the pid issuer session id, so the retry after use_dpop_nonce
// lands on the session that issued the nonce.
func (h *dpopHandler) ProcessSeedTokenRequest(_ context.Context, req *Request, resp *Response, session *Session) error {
	return h.validate(req, resp, session, validateOpts{requireNonce: true})
}

// Credential requests are authorized by the access token, so proof failures
// are authorization failures: 401 with a WWW-Authenticate challenge instead
// of the 400 the token endpoint renders.
func (h *dpopHandler) ProcessCredentialRequest(_ context.Context, req *Request, resp *Response, session *Session) error {
	return asUnauthorized(h.validate(req, resp, session, validateOpts{requireNonce: true, requireBoundKey: true, withAccessToken: true}))
}

func (h *dpopHandler) ProcessSeedCredentialRequest(_ context.Context, req *Request, resp *Response, session *Session) error {
	return asUnauthorized(h.validate(req, resp, session, validateOpts{requireNonce: true, requireBoundKey: true, withAccessToken: true}))
}

func asUnauthorized(err error) error {
	if err == nil {
		return nil
	}

	if oerr, ok := oidcerr.As(err); ok && oerr.Code == oidcerr.CodeInvalidDPoPProof {
		return oidcerr.NewUnauthorized(SchemeDPoP, oerr.Description).WithErr(oerr)
	}

	return err
}

type validateOpts struct {
	requireNonce    bool
	requireBoundKey bool
	withAccessToken bool
}

func (h *dpopHandler) validate(req *Request, resp *Response, session *Session, opts validateOpts) error {
	proof, err := h.validator.Parse(req.Header.Get("DPoP"))
	if err != nil {
		if errors.Is(err, dpop.ErrProofMissing) {
			return oidcerr.NewInvalidDPoPProof("DPoP proof missing").WithErr(err)
		}

		return oidcerr.NewInvalidDPoPProof("invalid DPoP proof").WithErr(err)
	}

	if opts.requireNonce {
		if err = h.checkNonce(proof, session); err != nil {
			return err
		}
	}

	accessToken := ""
	if opts.withAccessToken {
		if accessToken, err = session.CheckedParameter(KeyAccessToken); err != nil {
			return err
		}
	}

	if err = h.validator.VerifyClaims(proof, req.Method, req.URI, accessToken); err != nil {
		return oidcerr.NewInvalidDPoPProof("invalid DPoP proof").WithErr(err)
	}

	boundKey, haveBoundKey, err := session.OptionalKey(KeyDPoPPublicKey)
	if err != nil {
		return err
	}

	switch {
	case haveBoundKey:
		if !dpop.SameKey(boundKey, proof.Key) {
			return oidcerr.NewInvalidDPoPProof("key mismatch")
		}
	case opts.requireBoundKey:
		return oidcerrServer(errors.New("no DPoP key bound to session"))
	default:
		if err = session.SetKey(KeyDPoPPublicKey, proof.Key); err != nil {
			return oidcerrServer(err)
		}
	}

	fresh := h.nonces.GenerateDPoPNonce(session)
	resp.Header.Set("DPoP-Nonce", fresh.Value)

	return nil
}

// checkNonce applies the nonce rules: no nonce or a wrong nonce gets a retry
// signal carrying a newly minted nonce, a stale-but-matching nonce is a hard
// failure.
func (h *dpopHandler) checkNonce(proof *dpop.Proof, session *Session) error {
	current, issued, err := h.nonces.DPoPNonceFromSession(session)
	if err != nil {
		return err
	}

	if proof.Nonce == "" {
		fresh := h.nonces.GenerateDPoPNonce(session)
		return oidcerr.NewUseDPoPNonce("nonce required", fresh.Value)
	}

	if !issued || proof.Nonce != current.Value {
		fresh := h.nonces.GenerateDPoPNonce(session)
		return oidcerr.NewUseDPoPNonce("invalid nonce", fresh.Value)
	}

	if current.Expired() {
		return oidcerr.NewInvalidDPoPProof("nonce expired")
	}

	return nil
}
