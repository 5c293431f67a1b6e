/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package seedcredential

import (
	"crypto/ecdsa"
	"errors"
)

// Signer is the signing key material for issuing seed credentials.
type Signer struct {
	KeyID string
	Key   *ecdsa.PrivateKey
}

// TrustManager provides the issuer's seed signing, verification and payload
// encryption keys. A production deployment backs this with an HSM or KMS; key
// rotation is handled by resolving verification keys by kid.
type TrustManager interface {
	Signer() (*Signer, error)
	VerificationKey(keyID string) (*ecdsa.PublicKey, error)
	EncryptionKey() ([]byte, error)
}

// StaticTrustManager is a TrustManager over fixed key material.
type StaticTrustManager struct {
	keyID         string
	signingKey    *ecdsa.PrivateKey
	encryptionKey []byte
}

// NewStaticTrustManager creates a StaticTrustManager. The encryption key must
// be 32 bytes (AES-256-GCM).
func NewStaticTrustManager(keyID string, signingKey *ecdsa.PrivateKey, encryptionKey []byte) (*StaticTrustManager, error) {
	if keyID == "" {
		return nil, errors.New("key id required")
	}

	if signingKey == nil {
		return nil, errors.New("signing key required")
	}

	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}

	return &StaticTrustManager{
		keyID:         keyID,
		signingKey:    signingKey,
		encryptionKey: encryptionKey,
	}, nil
}

func (m *StaticTrustManager) Signer() (*Signer, error) {
	return &Signer{KeyID: m.keyID, Key: m.signingKey}, nil
}

func (m *StaticTrustManager) VerificationKey(keyID string) (*ecdsa.PublicKey, error) {
	if keyID != m.keyID {
		return nil, errors.New("unknown key id")
	}

	return &m.signingKey.PublicKey, nil
}

func (m *StaticTrustManager) EncryptionKey() ([]byte, error) {
	return m.encryptionKey, nil
}
