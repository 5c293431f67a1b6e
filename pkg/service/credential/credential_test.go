/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package credential_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/credential"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
)

func newBuilder(t *testing.T, config credential.BuilderConfig) (*credential.Builder, *ecdsa.PrivateKey) {
	t.Helper()

	signingKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	config.SigningKey = signingKey

	builder, err := credential.NewBuilder(config)
	require.NoError(t, err)

	return builder, signingKey
}

func holderJWK(t *testing.T) *jose.JSONWebKey {
	t.Helper()

	holderKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return &jose.JSONWebKey{Key: holderKey.Public(), Algorithm: string(jose.ES256)}
}

func TestBuildCredential(t *testing.T) {
	builder, signingKey := newBuilder(t, credential.BuilderConfig{
		Issuer:   "https://issuer.example.com",
		KeyID:    "pid-key-1",
		Validity: 24 * time.Hour,
	})

	holder := holderJWK(t)

	data := &identification.PersonalData{
		FamilyName: "Mustermann",
		GivenName:  "Erika",
		BirthDate:  "1964-08-12",
		Address: &identification.Address{
			Locality:   "Berlin",
			PostalCode: "10115",
			Country:    "D",
		},
	}

	compact, err := builder.BuildCredential(context.Background(), authorization.FormatSDJWT, data, holder)
	require.NoError(t, err)

	signature, err := jose.ParseSigned(compact)
	require.NoError(t, err)
	require.Equal(t, "vc+sd-jwt", signature.Signatures[0].Header.ExtraHeaders["typ"])
	require.Equal(t, "pid-key-1", signature.Signatures[0].Header.KeyID)

	payload, err := signature.Verify(signingKey.Public())
	require.NoError(t, err)

	claims := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(payload, &claims))

	require.Equal(t, "https://issuer.example.com", claims["iss"])
	require.Equal(t, credential.DefaultVct, claims["vct"])
	require.Equal(t, "Mustermann", claims["family_name"])
	require.Equal(t, "Erika", claims["given_name"])
	require.Equal(t, "1964-08-12", claims["birthdate"])

	address, ok := claims["address"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "Berlin", address["locality"])

	issuedAt, ok := claims["iat"].(float64)
	require.True(t, ok)
	expiresAt, ok := claims["exp"].(float64)
	require.True(t, ok)
	require.Equal(t, 24*time.Hour, time.Duration(expiresAt-issuedAt)*time.Second)

	cnf, ok := claims["cnf"].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, cnf, "jwk")
}

func TestBuildCredentialCustomVct(t *testing.T) {
	builder, _ := newBuilder(t, credential.BuilderConfig{
		Issuer:   "https://issuer.example.com",
		Validity: time.Hour,
		Vct:      "urn:example:pid:2",
	})

	compact, err := builder.BuildCredential(context.Background(), authorization.FormatSDJWT, &identification.PersonalData{
		FamilyName: "Mustermann",
		GivenName:  "Erika",
		BirthDate:  "1964-08-12",
	}, holderJWK(t))
	require.NoError(t, err)

	signature, err := jose.ParseSigned(compact)
	require.NoError(t, err)

	claims := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(signature.UnsafePayloadWithoutVerification(), &claims))
	require.Equal(t, "urn:example:pid:2", claims["vct"])
}

func TestBuildCredentialRejectsUnknownFormat(t *testing.T) {
	builder, _ := newBuilder(t, credential.BuilderConfig{
		Issuer:   "https://issuer.example.com",
		Validity: time.Hour,
	})

	_, err := builder.BuildCredential(context.Background(), "ldp_vc", &identification.PersonalData{
		FamilyName: "Mustermann",
		GivenName:  "Erika",
		BirthDate:  "1964-08-12",
	}, holderJWK(t))
	require.ErrorContains(t, err, "unsupported credential format")
}

func TestNewBuilderRequiresSigningKey(t *testing.T) {
	_, err := credential.NewBuilder(credential.BuilderConfig{Issuer: "https://issuer.example.com"})
	require.ErrorContains(t, err, "signing key required")
}

func TestFormats(t *testing.T) {
	builder, _ := newBuilder(t, credential.BuilderConfig{Issuer: "https://issuer.example.com"})
	require.Equal(t, []string{authorization.FormatSDJWT}, builder.Formats())
}
