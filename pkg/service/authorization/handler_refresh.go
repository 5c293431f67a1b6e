/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"

	"github.com/go-jose/go-jose/v3"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/dpop"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/seedcredential"
)

type seedCodec interface {
	BuildEncSeed(data *identification.PersonalData, holderKey *jose.JSONWebKey, issuer string) (string, error)
	ExtractEncSeed(token, issuer string) (*seedcredential.Seed, error)
	BuildPinSeed(data *identification.PersonalData, clientInstanceKey, pinDerivedKey *jose.JSONWebKey, issuer string) (string, error)
	ExtractPinSeed(token, issuer string) (*seedcredential.Seed, error)
}

// refreshValidationHandler verifies the refresh token, an encrypted seed
// credential bound to the wallet's DPoP key, and restores the identification
// data into the fresh session. The DPoP handler ran before and bound the key
// the wallet is currently proving; the seed must name the same key.
type refreshValidationHandler struct {
	NoopHandler

	codec  seedCodec
	config *Config
}

// NewRefreshValidationHandler creates the refresh token validation handler.
func NewRefreshValidationHandler(codec seedCodec, config *Config) Handler {
	return &refreshValidationHandler{codec: codec, config: config}
}

func (h *refreshValidationHandler) ProcessRefreshTokenRequest(_ context.Context, req *Request, _ *Response, session *Session) error {
	refreshToken, ok := req.Param("refresh_token")
	if !ok {
		return oidcerr.NewInvalidRequest("refresh_token missing")
	}

	issuer := h.config.CredentialIssuerIdentifier(session.FlowVariant)

	seed, err := h.codec.ExtractEncSeed(refreshToken, issuer)
	if err != nil {
		return oidcerr.NewInvalidGrant("invalid refresh token").WithErr(err)
	}

	boundKey, err := session.CheckedKey(KeyDPoPPublicKey)
	if err != nil {
		return err
	}

	if !dpop.SameKey(seed.HolderKey, boundKey) {
		return oidcerr.NewInvalidGrant("key mismatch")
	}

	rawData, err := seed.Data.Marshal()
	if err != nil {
		return oidcerrServer(err)
	}

	session.SetParameter(KeyIdentificationData, rawData)

	return nil
}

// refreshIssuanceHandler attaches a fresh refresh token, an encrypted seed
// over the current identification data and DPoP key, to every token
// response of a refresh-capable flow.
type refreshIssuanceHandler struct {
	NoopHandler

	codec  seedCodec
	config *Config
}

// NewRefreshIssuanceHandler creates the refresh token issuance handler.
func NewRefreshIssuanceHandler(codec seedCodec, config *Config) Handler {
	return &refreshIssuanceHandler{codec: codec, config: config}
}

func (h *refreshIssuanceHandler) ProcessTokenRequest(_ context.Context, _ *Request, resp *Response, session *Session) error {
	return h.issue(resp, session)
}

func (h *refreshIssuanceHandler) ProcessRefreshTokenRequest(_ context.Context, _ *Request, resp *Response, session *Session) error {
	return h.issue(resp, session)
}

func (h *refreshIssuanceHandler) issue(resp *Response, session *Session) error {
	rawData, err := session.CheckedParameter(KeyIdentificationData)
	if err != nil {
		return err
	}

	data, err := identification.ParseData(rawData)
	if err != nil {
		return oidcerrServer(err)
	}

	holderKey, err := session.CheckedKey(KeyDPoPPublicKey)
	if err != nil {
		return err
	}

	issuer := h.config.CredentialIssuerIdentifier(session.FlowVariant)

	refreshToken, err := h.codec.BuildEncSeed(data, holderKey, issuer)
	if err != nil {
		return oidcerrServer(err)
	}

	session.SetParameter(KeyRefreshTokenDigest, Digest(refreshToken))

	resp.Put("refresh_token", refreshToken)

	return nil
}
