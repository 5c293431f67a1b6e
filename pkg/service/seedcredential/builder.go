/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package seedcredential encodes identification results plus binding keys
// into signed seed credential tokens and verifies them on redemption. A seed
// credential lets a wallet obtain a fresh, differently-keyed credential later
// without repeating the external identification.
package seedcredential

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
)

// ErrInvalidSeed covers every decode and verification failure. Callers must
// not learn which check failed; a garbage token and a forged one look alike.
var ErrInvalidSeed = errors.New("invalid seed credential")

// Seed is the verified content of a seed credential.
type Seed struct {
	Data          *identification.PersonalData
	HolderKey     *jose.JSONWebKey
	PinDerivedKey *jose.JSONWebKey
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

type confirmation struct {
	JWK           *jose.JSONWebKey `json:"jwk"`
	PinDerivedJWK *jose.JSONWebKey `json:"pin_derived_public_jwk,omitempty"`
}

type seedClaims struct {
	Issuer     string                       `json:"iss"`
	IssuedAt   *int64                       `json:"iat"`
	Expiry     *int64                       `json:"exp"`
	Cnf        *confirmation                `json:"cnf"`
	PidData    *identification.PersonalData `json:"pid_data,omitempty"`
	PidDataEnc string                       `json:"pid_data_enc,omitempty"`
}

// Config wires a Builder.
type Config struct {
	TrustManager TrustManager
	Validity     time.Duration
}

// Builder builds and extracts seed credentials.
type Builder struct {
	trust    TrustManager
	validity time.Duration
}

// NewBuilder creates a Builder.
func NewBuilder(config *Config) *Builder {
	return &Builder{
		trust:    config.TrustManager,
		validity: config.Validity,
	}
}

// BuildEncSeed issues a seed credential bound to a single holder key, with
// the identification data encrypted into the pid_data_enc claim. Used for
// refresh tokens, which travel through the wallet but must not expose the
// holder's data.
func (b *Builder) BuildEncSeed(
	data *identification.PersonalData,
	holderKey *jose.JSONWebKey,
	issuer string,
) (string, error) {
	encrypted, err := b.encryptData(data)
	if err != nil {
		return "", err
	}

	return b.sign(&seedClaims{
		Issuer:     issuer,
		Cnf:        &confirmation{JWK: holderKey},
		PidDataEnc: encrypted,
	})
}

// BuildPinSeed issues a seed credential bound to both the long-lived client
// instance key and the short-lived PIN-derived key.
func (b *Builder) BuildPinSeed(
	data *identification.PersonalData,
	clientInstanceKey *jose.JSONWebKey,
	pinDerivedKey *jose.JSONWebKey,
	issuer string,
) (string, error) {
	return b.sign(&seedClaims{
		Issuer: issuer,
		Cnf: &confirmation{
			JWK:           clientInstanceKey,
			PinDerivedJWK: pinDerivedKey,
		},
		PidData: data,
	})
}

// ExtractEncSeed verifies an encrypted-payload seed credential and decrypts
// its identification data.
func (b *Builder) ExtractEncSeed(token, issuer string) (*Seed, error) {
	seed, claims, err := b.extract(token, issuer)
	if err != nil {
		return nil, err
	}

	if claims.PidDataEnc == "" {
		return nil, fmt.Errorf("%w: pid_data_enc missing", ErrInvalidSeed)
	}

	data, err := b.decryptData(claims.PidDataEnc)
	if err != nil {
		return nil, err
	}

	seed.Data = data

	return seed, nil
}

// ExtractPinSeed verifies a PIN-bound seed credential.
func (b *Builder) ExtractPinSeed(token, issuer string) (*Seed, error) {
	seed, claims, err := b.extract(token, issuer)
	if err != nil {
		return nil, err
	}

	if claims.PidData == nil {
		return nil, fmt.Errorf("%w: pid_data missing", ErrInvalidSeed)
	}

	if seed.PinDerivedKey == nil {
		return nil, fmt.Errorf("%w: pin_derived_public_jwk missing", ErrInvalidSeed)
	}

	seed.Data = claims.PidData

	return seed, nil
}

func (b *Builder) sign(claims *seedClaims) (string, error) {
	signer, err := b.trust.Signer()
	if err != nil {
		return "", fmt.Errorf("resolve seed signer: %w", err)
	}

	now := time.Now()
	iat := now.Unix()
	exp := now.Add(b.validity).Unix()
	claims.IssuedAt = &iat
	claims.Expiry = &exp

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal seed claims: %w", err)
	}

	joseSigner, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.ES256,
		Key: jose.JSONWebKey{
			Key:   signer.Key,
			KeyID: signer.KeyID,
		},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("create seed signer: %w", err)
	}

	jws, err := joseSigner.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign seed: %w", err)
	}

	compact, err := jws.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("serialize seed: %w", err)
	}

	return compact, nil
}

// extract verifies everything common to both seed forms: header shape,
// signature, issuer and expiry.
func (b *Builder) extract(token, issuer string) (*Seed, *seedClaims, error) {
	jws, err := jose.ParseSigned(token)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidSeed, err.Error())
	}

	if len(jws.Signatures) != 1 {
		return nil, nil, fmt.Errorf("%w: not exactly one signature", ErrInvalidSeed)
	}

	header := jws.Signatures[0].Protected

	// The issuer writes exactly alg and kid; anything else means the token
	// was not produced here.
	if header.Algorithm != string(jose.ES256) || header.KeyID == "" ||
		header.JSONWebKey != nil || len(header.ExtraHeaders) != 0 {
		return nil, nil, fmt.Errorf("%w: unexpected header", ErrInvalidSeed)
	}

	verificationKey, err := b.trust.VerificationKey(header.KeyID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown signer", ErrInvalidSeed)
	}

	payload, err := jws.Verify(verificationKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: signature invalid", ErrInvalidSeed)
	}

	var claims seedClaims
	if err = json.Unmarshal(payload, &claims); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed claims", ErrInvalidSeed)
	}

	if claims.Issuer != issuer {
		return nil, nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidSeed)
	}

	if claims.IssuedAt == nil || claims.Expiry == nil {
		return nil, nil, fmt.Errorf("%w: missing validity claims", ErrInvalidSeed)
	}

	expiresAt := time.Unix(*claims.Expiry, 0)
	if time.Now().After(expiresAt) {
		return nil, nil, fmt.Errorf("%w: expired", ErrInvalidSeed)
	}

	if claims.Cnf == nil || claims.Cnf.JWK == nil {
		return nil, nil, fmt.Errorf("%w: cnf missing", ErrInvalidSeed)
	}

	return &Seed{
		HolderKey:     claims.Cnf.JWK,
		PinDerivedKey: claims.Cnf.PinDerivedJWK,
		IssuedAt:      time.Unix(*claims.IssuedAt, 0),
		ExpiresAt:     expiresAt,
	}, &claims, nil
}

func (b *Builder) encryptData(data *identification.PersonalData) (string, error) {
	key, err := b.trust.EncryptionKey()
	if err != nil {
		return "", fmt.Errorf("resolve encryption key: %w", err)
	}

	encrypter, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{
		Algorithm: jose.DIRECT,
		Key:       key,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("create encrypter: %w", err)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal pid data: %w", err)
	}

	jwe, err := encrypter.Encrypt(payload)
	if err != nil {
		return "", fmt.Errorf("encrypt pid data: %w", err)
	}

	compact, err := jwe.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("serialize pid data: %w", err)
	}

	return compact, nil
}

func (b *Builder) decryptData(encrypted string) (*identification.PersonalData, error) {
	key, err := b.trust.EncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("resolve encryption key: %w", err)
	}

	jwe, err := jose.ParseEncrypted(encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed pid_data_enc", ErrInvalidSeed)
	}

	payload, err := jwe.Decrypt(key)
	if err != nil {
		return nil, fmt.Errorf("%w: pid_data_enc decryption failed", ErrInvalidSeed)
	}

	data := &identification.PersonalData{}
	if err = json.Unmarshal(payload, data); err != nil {
		return nil, fmt.Errorf("%w: malformed pid data", ErrInvalidSeed)
	}

	return data, nil
}
