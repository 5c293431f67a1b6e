/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package credential issues holder-bound PID credentials from verified
// identification data.
package credential

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/samber/lo"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
)

// DefaultVct is the verifiable credential type issued when none is
// configured.
const DefaultVct = "urn:eu.europa.ec.eudi:pid:1"

// BuilderConfig wires a Builder.
type BuilderConfig struct {
	Issuer     string
	KeyID      string
	SigningKey *ecdsa.PrivateKey
	Validity   time.Duration
	Vct        string
	Formats    []string
}

// Builder signs credentials over identification data, binding each one to a
// holder key via a cnf claim.
type Builder struct {
	issuer   string
	validity time.Duration
	vct      string
	formats  []string
	signer   jose.Signer
}

type credentialClaims struct {
	Issuer    string       `json:"iss"`
	IssuedAt  int64        `json:"iat"`
	ExpiresAt int64        `json:"exp"`
	Vct       string       `json:"vct"`
	Cnf       confirmation `json:"cnf"`
}

type confirmation struct {
	JWK *jose.JSONWebKey `json:"jwk"`
}

// NewBuilder creates a Builder.
func NewBuilder(config BuilderConfig) (*Builder, error) {
	if config.SigningKey == nil {
		return nil, errors.New("credential builder: signing key required")
	}

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.ES256,
		Key: &jose.JSONWebKey{
			Key:   config.SigningKey,
			KeyID: config.KeyID,
		},
	}, (&jose.SignerOptions{}).WithType("vc+sd-jwt"))
	if err != nil {
		return nil, fmt.Errorf("credential builder: %w", err)
	}

	vct := config.Vct
	if vct == "" {
		vct = DefaultVct
	}

	formats := config.Formats
	if len(formats) == 0 {
		formats = []string{authorization.FormatSDJWT}
	}

	return &Builder{
		issuer:   config.Issuer,
		validity: config.Validity,
		vct:      vct,
		formats:  formats,
		signer:   signer,
	}, nil
}

// Formats lists the credential formats this builder can issue.
func (b *Builder) Formats() []string {
	return b.formats
}

// BuildCredential signs a credential over the given data, bound to holderKey.
func (b *Builder) BuildCredential(
	_ context.Context,
	format string,
	data *identification.PersonalData,
	holderKey *jose.JSONWebKey,
) (string, error) {
	if !lo.Contains(b.formats, format) || format != authorization.FormatSDJWT {
		return "", fmt.Errorf("unsupported credential format %q", format)
	}

	now := time.Now().UTC()

	claims := credentialClaims{
		Issuer:    b.issuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(b.validity).Unix(),
		Vct:       b.vct,
		Cnf:       confirmation{JWK: holderKey},
	}

	payload, err := mergeClaims(claims, data)
	if err != nil {
		return "", fmt.Errorf("build credential: %w", err)
	}

	signature, err := b.signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("build credential: %w", err)
	}

	compact, err := signature.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("build credential: %w", err)
	}

	return compact, nil
}

// mergeClaims flattens the personal data into the registered claim set, so
// the credential carries the attributes at the top level.
func mergeClaims(claims credentialClaims, data *identification.PersonalData) ([]byte, error) {
	merged := map[string]interface{}{}

	rawClaims, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal(rawClaims, &merged); err != nil {
		return nil, err
	}

	rawData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	dataClaims := map[string]interface{}{}
	if err = json.Unmarshal(rawData, &dataClaims); err != nil {
		return nil, err
	}

	for name, value := range dataClaims {
		if _, reserved := merged[name]; reserved {
			continue
		}

		merged[name] = value
	}

	return json.Marshal(merged)
}
