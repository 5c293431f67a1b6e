/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package dpop parses and verifies DPoP proof JWTs (RFC 9449). Nonce state
// lives in the flow session; this package only covers the proof object
// itself: structure, claims and signature.
package dpop

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"
)

const (
	proofType = "dpop+jwt"

	// ES256 is the only signature algorithm wallets use.
	proofAlgorithm = string(jose.ES256)
)

// ErrProofMissing is returned when no proof was presented at all. Callers
// surface this distinctly from an invalid proof.
var ErrProofMissing = errors.New("dpop proof missing")

// Proof is a parsed and signature-verified DPoP proof.
type Proof struct {
	Key             *jose.JSONWebKey
	JTI             string
	Method          string
	URL             string
	IssuedAt        time.Time
	Nonce           string
	AccessTokenHash string
}

type proofClaims struct {
	JTI      string `json:"jti"`
	HTM      string `json:"htm"`
	HTU      string `json:"htu"`
	IssuedAt *int64 `json:"iat"`
	Nonce    string `json:"nonce"`
	ATH      string `json:"ath"`
}

// Config holds the validity window for proof timestamps.
type Config struct {
	ProofValidity time.Duration
	TimeTolerance time.Duration
}

// Validator checks DPoP proofs.
type Validator struct {
	proofValidity time.Duration
	timeTolerance time.Duration
}

// NewValidator creates a Validator.
func NewValidator(config *Config) *Validator {
	return &Validator{
		proofValidity: config.ProofValidity,
		timeTolerance: config.TimeTolerance,
	}
}

// Parse decodes the proof and verifies its signature against the key embedded
// in the proof header. Whether that key is the right one is the caller's
// continuity check.
func (v *Validator) Parse(compact string) (*Proof, error) {
	if compact == "" {
		return nil, ErrProofMissing
	}

	jws, err := jose.ParseSigned(compact)
	if err != nil {
		return nil, fmt.Errorf("parse dpop proof: %w", err)
	}

	if len(jws.Signatures) != 1 {
		return nil, errors.New("dpop proof must have exactly one signature")
	}

	header := jws.Signatures[0].Protected

	if typ, _ := header.ExtraHeaders[jose.HeaderType].(string); typ != proofType {
		return nil, fmt.Errorf("dpop proof typ must be %s", proofType)
	}

	if header.Algorithm != proofAlgorithm {
		return nil, fmt.Errorf("dpop proof alg must be %s", proofAlgorithm)
	}

	key := header.JSONWebKey
	if key == nil {
		return nil, errors.New("dpop proof must embed a jwk")
	}

	if !key.Valid() || !key.IsPublic() {
		return nil, errors.New("dpop proof jwk invalid")
	}

	payload, err := jws.Verify(key)
	if err != nil {
		return nil, fmt.Errorf("dpop proof signature invalid: %w", err)
	}

	var claims proofClaims
	if err = json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parse dpop proof claims: %w", err)
	}

	if claims.JTI == "" {
		return nil, errors.New("dpop proof jti missing")
	}

	if claims.IssuedAt == nil {
		return nil, errors.New("dpop proof iat missing")
	}

	return &Proof{
		Key:             key,
		JTI:             claims.JTI,
		Method:          claims.HTM,
		URL:             claims.HTU,
		IssuedAt:        time.Unix(*claims.IssuedAt, 0),
		Nonce:           claims.Nonce,
		AccessTokenHash: claims.ATH,
	}, nil
}

// VerifyClaims checks the proof binding to the request: HTTP method, target
// URL, issuance time window and, when an access token authorizes the request,
// the token hash.
func (v *Validator) VerifyClaims(proof *Proof, method string, requestURL *url.URL, accessToken string) error {
	if proof.Method != method {
		return fmt.Errorf("dpop proof htm mismatch: %s", proof.Method)
	}

	if !sameHTU(proof.URL, requestURL) {
		return fmt.Errorf("dpop proof htu mismatch: %s", proof.URL)
	}

	now := time.Now()

	if proof.IssuedAt.After(now.Add(v.timeTolerance)) {
		return errors.New("dpop proof issued in the future")
	}

	if proof.IssuedAt.Before(now.Add(-v.proofValidity - v.timeTolerance)) {
		return errors.New("dpop proof too old")
	}

	if accessToken != "" {
		if proof.AccessTokenHash != HashAccessToken(accessToken) {
			return errors.New("dpop proof ath mismatch")
		}
	}

	return nil
}

// HashAccessToken computes the ath claim value for an access token.
func HashAccessToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
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

// sameHTU compares the proof htu against the request target, ignoring query
// and fragment as RFC 9449 requires.
func sameHTU(htu string, requestURL *url.URL) bool {
	claimed, err := url.Parse(htu)
	if err != nil {
		return false
	}

	return strings.EqualFold(claimed.Scheme, requestURL.Scheme) &&
		strings.EqualFold(claimed.Host, requestURL.Host) &&
		rootedPath(claimed.Path) == rootedPath(requestURL.Path)
}

// rootedPath normalizes the leading slash so targets built with
// url.URL.JoinPath on a host-only base compare equal to parsed htu claims.
func rootedPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}

	return p
}
