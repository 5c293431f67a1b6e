/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"regexp"
)

const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	tokenLength   = 22

	requestURIPrefix = "urn:ietf:params:oauth:request_uri:"
)

var tokenPattern = regexp.MustCompile(`^[a-zA-Z0-9]{22}$`)

// RandomToken returns a fresh 22 character alphanumeric token. Tokens of this
// shape are used for request URIs, authorization codes, access tokens and
// nonces.
func RandomToken() string {
	out := make([]byte, tokenLength)

	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tokenAlphabet))))
		if err != nil {
			panic(fmt.Sprintf("read random: %v", err)) // crypto/rand must not fail
		}

		out[i] = tokenAlphabet[n.Int64()]
	}

	return string(out)
}

// IsValidToken reports whether the value has token shape. Stores are only
// queried for well-formed tokens.
func IsValidToken(value string) bool {
	return tokenPattern.MatchString(value)
}

// NewRequestURI returns a fresh PAR request URI.
func NewRequestURI() string {
	return requestURIPrefix + RandomToken()
}

// ParseRequestURI extracts the token from a request URI. It returns false for
// anything that is not a well-formed request URI URN.
func ParseRequestURI(requestURI string) (string, bool) {
	if len(requestURI) != len(requestURIPrefix)+tokenLength || requestURI[:len(requestURIPrefix)] != requestURIPrefix {
		return "", false
	}

	token := requestURI[len(requestURIPrefix):]
	if !IsValidToken(token) {
		return "", false
	}

	return token, true
}

// Digest returns the base64url encoded SHA-256 digest of the value. Refresh
// tokens and seed credential keys are stored and looked up by digest only.
func Digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
