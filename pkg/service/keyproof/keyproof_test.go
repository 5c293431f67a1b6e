/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keyproof_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/keyproof"
)

const issuerIdentifier = "https://issuer.example.com/c"

func TestVerify(t *testing.T) {
	service := newService(t)
	key := newKey(t)

	expect := keyproof.Expectation{
		Audience:       issuerIdentifier,
		NonceClaim:     keyproof.ClaimNonce,
		Nonce:          "c-nonce",
		NonceExpiresAt: time.Now().Add(5 * time.Minute),
	}

	t.Run("success", func(t *testing.T) {
		raw := signPop(t, key, keyproof.TypeKeyProof, popClaims(t), nil)

		pop, err := service.Verify(raw, keyproof.TypeKeyProof, expect)

		require.NoError(t, err)
		require.NotNil(t, pop.Key)
		require.Nil(t, pop.DeviceKey)
		require.Nil(t, pop.PinDerivedKey)
	})

	t.Run("success with expected issuer", func(t *testing.T) {
		claims := popClaims(t)
		claims["iss"] = "wallet-client"

		withIssuer := expect
		withIssuer.Issuer = "wallet-client"

		_, err := service.Verify(signPop(t, key, keyproof.TypeKeyProof, claims, nil),
			keyproof.TypeKeyProof, withIssuer)

		require.NoError(t, err)
	})

	t.Run("success with audience as array", func(t *testing.T) {
		claims := popClaims(t)
		claims["aud"] = []string{issuerIdentifier}

		_, err := service.Verify(signPop(t, key, keyproof.TypeKeyProof, claims, nil),
			keyproof.TypeKeyProof, expect)

		require.NoError(t, err)
	})

	t.Run("success with cross-referenced keys", func(t *testing.T) {
		deviceKey := newKey(t)

		claims := popClaims(t)
		claims["device_key"] = map[string]interface{}{
			"jwk": publicJWK(t, deviceKey),
		}

		pop, err := service.Verify(signPop(t, key, keyproof.TypePinDerivedEphKeyPop, claims, nil),
			keyproof.TypePinDerivedEphKeyPop, expect)

		require.NoError(t, err)
		require.NotNil(t, pop.DeviceKey)
		require.True(t, keyproof.SameKey(pop.DeviceKey, publicJWK(t, deviceKey)))
	})

	t.Run("wrong typ", func(t *testing.T) {
		raw := signPop(t, key, keyproof.TypeDeviceKeyPop, popClaims(t), nil)

		_, err := service.Verify(raw, keyproof.TypeKeyProof, expect)

		require.ErrorContains(t, err, "typ must be")
	})

	t.Run("kid rejected", func(t *testing.T) {
		raw := signPop(t, key, keyproof.TypeKeyProof, popClaims(t), func(opts *jose.SignerOptions) {
			opts.WithHeader(jose.HeaderKey("kid"), "some-key-id")
		})

		_, err := service.Verify(raw, keyproof.TypeKeyProof, expect)

		require.ErrorContains(t, err, "kid")
	})

	t.Run("trust_chain rejected", func(t *testing.T) {
		raw := signPop(t, key, keyproof.TypeKeyProof, popClaims(t), func(opts *jose.SignerOptions) {
			opts.WithHeader(jose.HeaderKey("trust_chain"), []string{"entity-statement"})
		})

		_, err := service.Verify(raw, keyproof.TypeKeyProof, expect)

		require.ErrorContains(t, err, "trust_chain")
	})

	t.Run("aud mismatch", func(t *testing.T) {
		claims := popClaims(t)
		claims["aud"] = "https://other.example.com"

		_, err := service.Verify(signPop(t, key, keyproof.TypeKeyProof, claims, nil),
			keyproof.TypeKeyProof, expect)

		require.ErrorContains(t, err, "aud mismatch")
	})

	t.Run("iss mismatch", func(t *testing.T) {
		claims := popClaims(t)
		claims["iss"] = "other-client"

		withIssuer := expect
		withIssuer.Issuer = "wallet-client"

		_, err := service.Verify(signPop(t, key, keyproof.TypeKeyProof, claims, nil),
			keyproof.TypeKeyProof, withIssuer)

		require.ErrorContains(t, err, "iss mismatch")
	})

	t.Run("iat missing", func(t *testing.T) {
		claims := popClaims(t)
		delete(claims, "iat")

		_, err := service.Verify(signPop(t, key, keyproof.TypeKeyProof, claims, nil),
			keyproof.TypeKeyProof, expect)

		require.ErrorContains(t, err, "iat missing")
	})

	t.Run("challenge mismatch", func(t *testing.T) {
		claims := popClaims(t)
		claims["nonce"] = "stale-nonce"

		_, err := service.Verify(signPop(t, key, keyproof.TypeKeyProof, claims, nil),
			keyproof.TypeKeyProof, expect)

		require.ErrorContains(t, err, "challenge mismatch")
	})

	t.Run("challenge expired", func(t *testing.T) {
		expired := expect
		expired.NonceExpiresAt = time.Now().Add(-time.Hour)

		_, err := service.Verify(signPop(t, key, keyproof.TypeKeyProof, popClaims(t), nil),
			keyproof.TypeKeyProof, expired)

		require.ErrorContains(t, err, "challenge expired")
	})

	t.Run("session id challenge", func(t *testing.T) {
		claims := popClaims(t)
		delete(claims, "nonce")
		claims["pid_issuer_session_id"] = "session-id-value"

		sessionExpect := expect
		sessionExpect.NonceClaim = keyproof.ClaimIssuerSessionID
		sessionExpect.Nonce = "session-id-value"

		_, err := service.Verify(signPop(t, key, keyproof.TypeDeviceKeyPop, claims, nil),
			keyproof.TypeDeviceKeyPop, sessionExpect)

		require.NoError(t, err)
	})
}

func TestCrossCheck(t *testing.T) {
	deviceKey := newKey(t)
	pinKey := newKey(t)

	pinPop := &keyproof.Pop{
		Key:       publicJWK(t, pinKey),
		DeviceKey: publicJWK(t, deviceKey),
	}
	devicePop := &keyproof.Pop{
		Key:           publicJWK(t, deviceKey),
		PinDerivedKey: publicJWK(t, pinKey),
	}

	t.Run("success", func(t *testing.T) {
		require.NoError(t, keyproof.CrossCheck(pinPop, devicePop))
	})

	t.Run("pin proof references wrong device key", func(t *testing.T) {
		broken := &keyproof.Pop{
			Key:       pinPop.Key,
			DeviceKey: publicJWK(t, newKey(t)),
		}

		err := keyproof.CrossCheck(broken, devicePop)

		require.ErrorContains(t, err, "does not reference the device key")
	})

	t.Run("device proof references wrong pin key", func(t *testing.T) {
		broken := &keyproof.Pop{
			Key:           devicePop.Key,
			PinDerivedKey: publicJWK(t, newKey(t)),
		}

		err := keyproof.CrossCheck(pinPop, broken)

		require.ErrorContains(t, err, "does not reference the pin derived key")
	})

	t.Run("missing references", func(t *testing.T) {
		err := keyproof.CrossCheck(&keyproof.Pop{Key: pinPop.Key}, devicePop)

		require.Error(t, err)
	})
}

func TestParseSessionID(t *testing.T) {
	key := newKey(t)

	t.Run("success", func(t *testing.T) {
		claims := popClaims(t)
		claims["pid_issuer_session_id"] = "session-id-value"

		sessionID, err := keyproof.ParseSessionID(
			signPop(t, key, keyproof.TypeDeviceKeyPop, claims, nil))

		require.NoError(t, err)
		require.Equal(t, "session-id-value", sessionID)
	})

	t.Run("claim missing", func(t *testing.T) {
		_, err := keyproof.ParseSessionID(
			signPop(t, key, keyproof.TypeDeviceKeyPop, popClaims(t), nil))

		require.ErrorContains(t, err, "pid_issuer_session_id missing")
	})

	t.Run("not a jws", func(t *testing.T) {
		_, err := keyproof.ParseSessionID("garbage")

		require.ErrorContains(t, err, "parse proof")
	})
}

func newService(t *testing.T) *keyproof.Service {
	t.Helper()

	return keyproof.NewService(&keyproof.Config{
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

func publicJWK(t *testing.T, key *ecdsa.PrivateKey) *jose.JSONWebKey {
	t.Helper()

	return &jose.JSONWebKey{Key: key.Public()}
}

func popClaims(t *testing.T) map[string]interface{} {
	t.Helper()

	return map[string]interface{}{
		"aud":   issuerIdentifier,
		"iat":   time.Now().Unix(),
		"nonce": "c-nonce",
	}
}

func signPop(
	t *testing.T,
	key *ecdsa.PrivateKey,
	typ string,
	claims map[string]interface{},
	customize func(*jose.SignerOptions),
) string {
	t.Helper()

	opts := &jose.SignerOptions{EmbedJWK: true}
	opts.WithType(jose.ContentType(typ))

	if customize != nil {
		customize(opts)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: key}, opts)
	require.NoError(t, err)

	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	jws, err := signer.Sign(payload)
	require.NoError(t, err)

	compact, err := jws.CompactSerialize()
	require.NoError(t, err)

	return compact
}
