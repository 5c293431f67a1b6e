/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dpop_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/dpop"
)

func TestParse(t *testing.T) {
	validator := newValidator(t)
	key := newKey(t)

	t.Run("success", func(t *testing.T) {
		proof, err := validator.Parse(signProof(t, key, proofClaims(t)))

		require.NoError(t, err)
		require.NotNil(t, proof.Key)
		require.NotEmpty(t, proof.JTI)
		require.Equal(t, http.MethodPost, proof.Method)
		require.Equal(t, "https://issuer.example.com/c/token", proof.URL)
		require.Empty(t, proof.Nonce)
	})

	t.Run("success with nonce and ath", func(t *testing.T) {
		claims := proofClaims(t)
		claims["nonce"] = "server-nonce"
		claims["ath"] = dpop.HashAccessToken("token")

		proof, err := validator.Parse(signProof(t, key, claims))

		require.NoError(t, err)
		require.Equal(t, "server-nonce", proof.Nonce)
		require.Equal(t, dpop.HashAccessToken("token"), proof.AccessTokenHash)
	})

	t.Run("missing proof", func(t *testing.T) {
		_, err := validator.Parse("")

		require.ErrorIs(t, err, dpop.ErrProofMissing)
	})

	t.Run("not a jws", func(t *testing.T) {
		_, err := validator.Parse("not-a-jws")

		require.ErrorContains(t, err, "parse dpop proof")
	})

	t.Run("wrong typ", func(t *testing.T) {
		signer := newSigner(t, key, "openid4vci-proof+jwt")

		_, err := validator.Parse(sign(t, signer, proofClaims(t)))

		require.ErrorContains(t, err, "typ must be dpop+jwt")
	})

	t.Run("no embedded jwk", func(t *testing.T) {
		signer, err := jose.NewSigner(
			jose.SigningKey{Algorithm: jose.ES256, Key: key},
			(&jose.SignerOptions{}).WithType("dpop+jwt"),
		)
		require.NoError(t, err)

		_, err = validator.Parse(sign(t, signer, proofClaims(t)))

		require.ErrorContains(t, err, "must embed a jwk")
	})

	t.Run("jti missing", func(t *testing.T) {
		claims := proofClaims(t)
		delete(claims, "jti")

		_, err := validator.Parse(signProof(t, key, claims))

		require.ErrorContains(t, err, "jti missing")
	})

	t.Run("iat missing", func(t *testing.T) {
		claims := proofClaims(t)
		delete(claims, "iat")

		_, err := validator.Parse(signProof(t, key, claims))

		require.ErrorContains(t, err, "iat missing")
	})
}

func TestVerifyClaims(t *testing.T) {
	validator := newValidator(t)
	key := newKey(t)

	requestURL, err := url.Parse("https://issuer.example.com/c/token")
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		proof := parse(t, validator, signProof(t, key, proofClaims(t)))

		require.NoError(t, validator.VerifyClaims(proof, http.MethodPost, requestURL, ""))
	})

	t.Run("htu ignores query", func(t *testing.T) {
		withQuery := *requestURL
		withQuery.RawQuery = "foo=bar"

		proof := parse(t, validator, signProof(t, key, proofClaims(t)))

		require.NoError(t, validator.VerifyClaims(proof, http.MethodPost, &withQuery, ""))
	})

	t.Run("htu matches unrooted target path", func(t *testing.T) {
		// url.URL.JoinPath on a host-only base yields a path without a
		// leading slash; the comparison must not depend on rooted-ness.
		base, err := url.Parse("https://issuer.example.com")
		require.NoError(t, err)

		target := base.JoinPath("c", "token")
		require.Equal(t, "c/token", target.Path)

		proof := parse(t, validator, signProof(t, key, proofClaims(t)))

		require.NoError(t, validator.VerifyClaims(proof, http.MethodPost, target, ""))
	})

	t.Run("ath match", func(t *testing.T) {
		claims := proofClaims(t)
		claims["ath"] = dpop.HashAccessToken("token")

		proof := parse(t, validator, signProof(t, key, claims))

		require.NoError(t, validator.VerifyClaims(proof, http.MethodPost, requestURL, "token"))
	})

	t.Run("htm mismatch", func(t *testing.T) {
		proof := parse(t, validator, signProof(t, key, proofClaims(t)))

		err := validator.VerifyClaims(proof, http.MethodGet, requestURL, "")

		require.ErrorContains(t, err, "htm mismatch")
	})

	t.Run("htu mismatch", func(t *testing.T) {
		claims := proofClaims(t)
		claims["htu"] = "https://attacker.example.com/c/token"

		proof := parse(t, validator, signProof(t, key, claims))

		err := validator.VerifyClaims(proof, http.MethodPost, requestURL, "")

		require.ErrorContains(t, err, "htu mismatch")
	})

	t.Run("issued in the future", func(t *testing.T) {
		claims := proofClaims(t)
		claims["iat"] = time.Now().Add(10 * time.Minute).Unix()

		proof := parse(t, validator, signProof(t, key, claims))

		err := validator.VerifyClaims(proof, http.MethodPost, requestURL, "")

		require.ErrorContains(t, err, "issued in the future")
	})

	t.Run("too old", func(t *testing.T) {
		claims := proofClaims(t)
		claims["iat"] = time.Now().Add(-time.Hour).Unix()

		proof := parse(t, validator, signProof(t, key, claims))

		err := validator.VerifyClaims(proof, http.MethodPost, requestURL, "")

		require.ErrorContains(t, err, "too old")
	})

	t.Run("ath mismatch", func(t *testing.T) {
		claims := proofClaims(t)
		claims["ath"] = dpop.HashAccessToken("other-token")

		proof := parse(t, validator, signProof(t, key, claims))

		err := validator.VerifyClaims(proof, http.MethodPost, requestURL, "token")

		require.ErrorContains(t, err, "ath mismatch")
	})
}

func TestSameKey(t *testing.T) {
	keyA := newKey(t)
	keyB := newKey(t)

	jwkA := &jose.JSONWebKey{Key: keyA.Public()}
	jwkB := &jose.JSONWebKey{Key: keyB.Public()}

	require.True(t, dpop.SameKey(jwkA, jwkA))
	require.False(t, dpop.SameKey(jwkA, jwkB))
	require.False(t, dpop.SameKey(jwkA, nil))
	require.False(t, dpop.SameKey(nil, jwkB))
}

func newValidator(t *testing.T) *dpop.Validator {
	t.Helper()

	return dpop.NewValidator(&dpop.Config{
		ProofValidity: 5 * time.Minute,
		TimeTolerance: 30 * time.Second,
	})
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return key
}

func proofClaims(t *testing.T) map[string]interface{} {
	t.Helper()

	return map[string]interface{}{
		"jti": uuid.NewString(),
		"htm": http.MethodPost,
		"htu": "https://issuer.example.com/c/token",
		"iat": time.Now().Unix(),
	}
}

func newSigner(t *testing.T, key *ecdsa.PrivateKey, typ string) jose.Signer {
	t.Helper()

	opts := &jose.SignerOptions{EmbedJWK: true}
	opts.WithType(jose.ContentType(typ))

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: key}, opts)
	require.NoError(t, err)

	return signer
}

func signProof(t *testing.T, key *ecdsa.PrivateKey, claims map[string]interface{}) string {
	t.Helper()

	return sign(t, newSigner(t, key, "dpop+jwt"), claims)
}

func sign(t *testing.T, signer jose.Signer, claims map[string]interface{}) string {
	t.Helper()

	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	jws, err := signer.Sign(payload)
	require.NoError(t, err)

	compact, err := jws.CompactSerialize()
	require.NoError(t, err)

	return compact
}

func parse(t *testing.T, validator *dpop.Validator, compact string) *dpop.Proof {
	t.Helper()

	proof, err := validator.Parse(compact)
	require.NoError(t, err)

	return proof
}
