/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package keyproof verifies the holder-binding proof JWTs a wallet presents:
// the OpenID4VCI key proof on credential requests and the two PIN setup /
// redemption proofs of the seed credential flow.
package keyproof

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
)

// JWT typ values of the supported proofs.
const (
	TypeKeyProof            = "openid4vci-proof+jwt"
	TypePinDerivedEphKeyPop = "pin_derived_eph_key_pop"
	TypeDeviceKeyPop        = "device_key_pop"
)

// Claim names carrying the challenge value, depending on the flow step.
const (
	ClaimNonce           = "nonce"
	ClaimIssuerSessionID = "pid_issuer_session_id"
)

const proofAlgorithm = string(jose.ES256)

// Expectation is the verifying context a proof must match.
type Expectation struct {
	// Issuer is the client_id the proof's iss claim must equal. Empty means
	// the iss claim is not required.
	Issuer string

	// Audience is the credential issuer identifier of the serving flow.
	Audience string

	// NonceClaim names the claim carrying the challenge, ClaimNonce or
	// ClaimIssuerSessionID.
	NonceClaim string

	// Nonce is the expected challenge value with its expiry.
	Nonce          string
	NonceExpiresAt time.Time
}

// Pop is a verified proof of possession. Key is the key the proof was signed
// with; DeviceKey and PinDerivedKey carry the cross-referenced keys of the
// PIN proofs when present.
type Pop struct {
	Key           *jose.JSONWebKey
	DeviceKey     *jose.JSONWebKey
	PinDerivedKey *jose.JSONWebKey
}

type embeddedKey struct {
	JWK *jose.JSONWebKey `json:"jwk"`
}

type popClaims struct {
	Issuer          string       `json:"iss"`
	Audience        audience     `json:"aud"`
	IssuedAt        *int64       `json:"iat"`
	Nonce           string       `json:"nonce"`
	IssuerSessionID string       `json:"pid_issuer_session_id"`
	DeviceKey       *embeddedKey `json:"device_key"`
	PinDerivedKey   *embeddedKey `json:"pin_derived_eph_pub"`
}

// audience accepts both the string and the single-element array form.
type audience string

func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience(single)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}

	if len(list) != 1 {
		return errors.New("aud must contain exactly one value")
	}

	*a = audience(list[0])

	return nil
}

// Config holds the validity window for proof timestamps.
type Config struct {
	ProofValidity time.Duration
	TimeTolerance time.Duration
}

// Service verifies proofs of possession.
type Service struct {
	proofValidity time.Duration
	timeTolerance time.Duration
}

// NewService creates a Service.
func NewService(config *Config) *Service {
	return &Service{
		proofValidity: config.ProofValidity,
		timeTolerance: config.TimeTolerance,
	}
}

// Verify checks one proof JWT of the given typ against the expectation and
// returns the verified possession. The signature must verify against the key
// embedded in the proof header; key identification by reference (kid, x5c,
// trust_chain) is rejected.
func (s *Service) Verify(raw, typ string, expect Expectation) (*Pop, error) {
	jws, err := jose.ParseSigned(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proof: %w", err)
	}

	if len(jws.Signatures) != 1 {
		return nil, errors.New("proof must have exactly one signature")
	}

	header := jws.Signatures[0].Protected

	if actual, _ := header.ExtraHeaders[jose.HeaderType].(string); actual != typ {
		return nil, fmt.Errorf("proof typ must be %s", typ)
	}

	if header.Algorithm != proofAlgorithm {
		return nil, fmt.Errorf("proof alg must be %s", proofAlgorithm)
	}

	if header.KeyID != "" {
		return nil, errors.New("proof must not reference a key by kid")
	}

	if _, found := header.ExtraHeaders["trust_chain"]; found {
		return nil, errors.New("proof must not carry a trust_chain")
	}

	key := header.JSONWebKey
	if key == nil {
		return nil, errors.New("proof must embed a jwk")
	}

	if !key.Valid() || !key.IsPublic() {
		return nil, errors.New("proof jwk invalid")
	}

	payload, err := jws.Verify(key)
	if err != nil {
		return nil, fmt.Errorf("proof signature invalid: %w", err)
	}

	var claims popClaims
	if err = json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parse proof claims: %w", err)
	}

	if err = s.verifyClaims(&claims, expect); err != nil {
		return nil, err
	}

	pop := &Pop{Key: key}

	if claims.DeviceKey != nil {
		pop.DeviceKey = claims.DeviceKey.JWK
	}

	if claims.PinDerivedKey != nil {
		pop.PinDerivedKey = claims.PinDerivedKey.JWK
	}

	return pop, nil
}

func (s *Service) verifyClaims(claims *popClaims, expect Expectation) error {
	if expect.Issuer != "" && claims.Issuer != expect.Issuer {
		return errors.New("proof iss mismatch")
	}

	if string(claims.Audience) != expect.Audience {
		return errors.New("proof aud mismatch")
	}

	if claims.IssuedAt == nil {
		return errors.New("proof iat missing")
	}

	now := time.Now()
	issuedAt := time.Unix(*claims.IssuedAt, 0)

	if issuedAt.After(now.Add(s.timeTolerance)) {
		return errors.New("proof issued in the future")
	}

	if issuedAt.Before(now.Add(-s.proofValidity - s.timeTolerance)) {
		return errors.New("proof too old")
	}

	challenge := claims.Nonce
	if expect.NonceClaim == ClaimIssuerSessionID {
		challenge = claims.IssuerSessionID
	}

	if challenge == "" || challenge != expect.Nonce {
		return errors.New("proof challenge mismatch")
	}

	if now.After(expect.NonceExpiresAt.Add(s.timeTolerance)) {
		return errors.New("proof challenge expired")
	}

	return nil
}

// CrossCheck verifies the mutual key references of the two PIN proofs: the
// PIN proof must name the device key it was set up with, and the device proof
// must name the PIN-derived key, each matching the other proof's signing key.
func CrossCheck(pinPop, devicePop *Pop) error {
	if pinPop.DeviceKey == nil || !SameKey(pinPop.DeviceKey, devicePop.Key) {
		return errors.New("pin proof does not reference the device key")
	}

	if devicePop.PinDerivedKey == nil || !SameKey(devicePop.PinDerivedKey, pinPop.Key) {
		return errors.New("device proof does not reference the pin derived key")
	}

	return nil
}

// SameKey reports whether two keys have the same SHA-256 thumbprint.
func SameKey(a, b *jose.JSONWebKey) bool {
	if a == nil || b == nil {
		return false
	}

	ta, err := a.Thumbprint(crypto.SHA256)
	if err != nil {
		return false
	}

	tb, err := b.Thumbprint(crypto.SHA256)
	if err != nil {
		return false
	}

	return string(ta) == string(tb)
}

// ParseSessionID extracts the pid_issuer_session_id claim without verifying
// the signature. Seed redemption needs the claim value first to resolve the
// challenge the proof is then verified against.
func ParseSessionID(raw string) (string, error) {
	jws, err := jose.ParseSigned(raw)
	if err != nil {
		return "", fmt.Errorf("parse proof: %w", err)
	}

	var claims popClaims
	if err = json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &claims); err != nil {
		return "", fmt.Errorf("parse proof claims: %w", err)
	}

	if claims.IssuerSessionID == "" {
		return "", errors.New("proof pid_issuer_session_id missing")
	}

	return claims.IssuerSessionID, nil
}
