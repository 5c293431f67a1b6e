/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
	"errors"

	"github.com/go-jose/go-jose/v3"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/keyproof"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/pinretry"
)

type retryCounter interface {
	Initialize(ctx context.Context, key *jose.JSONWebKey) error
	Load(ctx context.Context, key *jose.JSONWebKey) (string, error)
	Increment(ctx context.Context, digest string) error
}

// initPinRetryCounterHandler validates the two PIN setup proofs of a seed
// credential request, binds their keys to the session and resets the lockout
// counter for the device key.
type initPinRetryCounterHandler struct {
	NoopHandler

	proofs  proofVerifier
	retries retryCounter
	config  *Config
}

// NewInitPinRetryCounterHandler creates the PIN setup handler.
func NewInitPinRetryCounterHandler(proofs proofVerifier, retries retryCounter, config *Config) Handler {
	return &initPinRetryCounterHandler{
		proofs:  proofs,
		retries: retries,
		config:  config,
	}
}

func (h *initPinRetryCounterHandler) ProcessSeedCredentialRequest(ctx context.Context, req *Request, _ *Response, session *Session) error {
	if req.SeedCredential == nil || req.SeedCredential.PinDerivedEphKeyPop == "" || req.SeedCredential.DeviceKeyPop == "" {
		return oidcerr.NewInvalidRequest("missing pin setup proofs")
	}

	cNonce, err := session.CheckedParameter(KeyCNonce)
	if err != nil {
		return err
	}

	cNonceExpires, err := session.CheckedInstant(KeyCNonceExpires)
	if err != nil {
		return err
	}

	expect := keyproof.Expectation{
		Audience:       h.config.CredentialIssuerIdentifier(session.FlowVariant),
		NonceClaim:     keyproof.ClaimNonce,
		Nonce:          cNonce,
		NonceExpiresAt: cNonceExpires,
	}

	pinPop, err := h.proofs.Verify(req.SeedCredential.PinDerivedEphKeyPop, keyproof.TypePinDerivedEphKeyPop, expect)
	if err != nil {
		return oidcerr.NewInvalidProof("invalid pin_derived_eph_key_pop").WithErr(err)
	}

	devicePop, err := h.proofs.Verify(req.SeedCredential.DeviceKeyPop, keyproof.TypeDeviceKeyPop, expect)
	if err != nil {
		return oidcerr.NewInvalidProof("invalid device_key_pop").WithErr(err)
	}

	if err = keyproof.CrossCheck(pinPop, devicePop); err != nil {
		return oidcerr.NewInvalidProof("proof keys do not cross-reference").WithErr(err)
	}

	if err = h.retries.Initialize(ctx, devicePop.Key); err != nil {
		return oidcerrServer(err)
	}

	if err = session.SetKey(KeyClientInstanceKey, devicePop.Key); err != nil {
		return oidcerrServer(err)
	}

	if err = session.SetKey(KeyPinDerivedPublicKey, pinPop.Key); err != nil {
		return oidcerrServer(err)
	}

	return nil
}

// seedIssuanceHandler builds the PIN-bound seed credential once the setup
// proofs were accepted.
type seedIssuanceHandler struct {
	NoopHandler

	codec  seedCodec
	config *Config
}

// NewSeedIssuanceHandler creates the seed credential issuance handler.
func NewSeedIssuanceHandler(codec seedCodec, config *Config) Handler {
	return &seedIssuanceHandler{codec: codec, config: config}
}

func (h *seedIssuanceHandler) ProcessSeedCredentialRequest(_ context.Context, _ *Request, resp *Response, session *Session) error {
	rawData, err := session.CheckedParameter(KeyIdentificationData)
	if err != nil {
		return err
	}

	data, err := identification.ParseData(rawData)
	if err != nil {
		return oidcerrServer(err)
	}

	clientInstanceKey, err := session.CheckedKey(KeyClientInstanceKey)
	if err != nil {
		return err
	}

	pinDerivedKey, err := session.CheckedKey(KeyPinDerivedPublicKey)
	if err != nil {
		return err
	}

	issuer := h.config.CredentialIssuerIdentifier(session.FlowVariant)

	seed, err := h.codec.BuildPinSeed(data, clientInstanceKey, pinDerivedKey, issuer)
	if err != nil {
		return oidcerrServer(err)
	}

	resp.Put("credential", seed)

	return nil
}

// seedRedemptionHandler validates a seed token request: the seed credential
// itself, the lockout counter, the single-use session id and the two
// PIN-bound proofs. Every verification failure after the seed decoded
// successfully counts against the lockout; a decode failure does not, since a
// garbage token is not a wrong-PIN guess.
type seedRedemptionHandler struct {
	NoopHandler

	codec    seedCodec
	proofs   proofVerifier
	retries  retryCounter
	sessions *SessionManager
	config   *Config
}

// NewSeedRedemptionHandler creates the seed redemption handler.
func NewSeedRedemptionHandler(
	codec seedCodec,
	proofs proofVerifier,
	retries retryCounter,
	sessions *SessionManager,
	config *Config,
) Handler {
	return &seedRedemptionHandler{
		codec:    codec,
		proofs:   proofs,
		retries:  retries,
		sessions: sessions,
		config:   config,
	}
}

func (h *seedRedemptionHandler) ProcessSeedTokenRequest(ctx context.Context, req *Request, _ *Response, session *Session) error {
	issuer := h.config.CredentialIssuerIdentifier(session.FlowVariant)

	seed, err := h.codec.ExtractPinSeed(req.SeedToken.SeedCredential, issuer)
	if err != nil {
		return oidcerr.NewInvalidGrant("invalid seed credential").WithErr(err)
	}

	digest, err := h.retries.Load(ctx, seed.HolderKey)
	if err != nil {
		switch {
		case errors.Is(err, pinretry.ErrLocked):
			return oidcerr.NewInvalidGrant("PIN locked").WithErr(err)
		case errors.Is(err, pinretry.ErrCounterNotFound):
			return oidcerr.NewInvalidGrant("invalid seed credential").WithErr(err)
		default:
			return oidcerrServer(err)
		}
	}

	// The flow bound the session to the session id from the device proof
	// before the handlers ran; consuming the nonce here keeps it single use.
	sessionID, err := session.CheckedParameter(KeyIssuerSessionID)
	if err != nil {
		return err
	}

	nonce, err := h.sessions.ConsumeSessionIDNonce(ctx, sessionID)
	if err != nil {
		oerr, ok := oidcerr.As(err)
		if !ok || oerr.Code == oidcerr.CodeServerError {
			return err
		}

		return h.countedFailure(ctx, digest, oerr)
	}

	expect := keyproof.Expectation{
		Audience:       issuer,
		NonceClaim:     keyproof.ClaimIssuerSessionID,
		Nonce:          nonce.Value,
		NonceExpiresAt: nonce.ExpiresAt,
	}

	devicePop, err := h.proofs.Verify(req.SeedToken.DeviceKeyPop, keyproof.TypeDeviceKeyPop, expect)
	if err != nil {
		return h.countedFailure(ctx, digest, oidcerr.NewInvalidGrant("invalid device_key_pop").WithErr(err))
	}

	if !keyproof.SameKey(devicePop.Key, seed.HolderKey) {
		return h.countedFailure(ctx, digest, oidcerr.NewInvalidGrant("key mismatch"))
	}

	pinPop, err := h.proofs.Verify(req.SeedToken.PinDerivedEphKeyPop, keyproof.TypePinDerivedEphKeyPop, expect)
	if err != nil {
		return h.countedFailure(ctx, digest, oidcerr.NewInvalidGrant("invalid pin_derived_eph_key_pop").WithErr(err))
	}

	if !keyproof.SameKey(pinPop.Key, seed.PinDerivedKey) {
		return h.countedFailure(ctx, digest, oidcerr.NewInvalidGrant("key mismatch"))
	}

	if err = keyproof.CrossCheck(pinPop, devicePop); err != nil {
		return h.countedFailure(ctx, digest, oidcerr.NewInvalidGrant("proof keys do not cross-reference").WithErr(err))
	}

	rawData, err := seed.Data.Marshal()
	if err != nil {
		return oidcerrServer(err)
	}

	session.SetParameter(KeyIdentificationData, rawData)

	if err = session.SetKey(KeyClientInstanceKey, devicePop.Key); err != nil {
		return oidcerrServer(err)
	}

	return nil
}

// countedFailure records the failed attempt before surfacing the cause. An
// increment that exhausts the allowance reports the lockout instead.
func (h *seedRedemptionHandler) countedFailure(ctx context.Context, digest string, cause *oidcerr.Error) error {
	if err := h.retries.Increment(ctx, digest); err != nil {
		if errors.Is(err, pinretry.ErrLocked) {
			return oidcerr.NewInvalidGrant("PIN locked").WithErr(cause)
		}

		return oidcerrServer(err)
	}

	return cause
}
