/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/seedcredential"
)

const encryptionKeySize = 32

func createTrustManager(params *startupParameters) (*seedcredential.StaticTrustManager, error) {
	signingKey, err := loadSigningKey(params.signingKeyPath)
	if err != nil {
		return nil, err
	}

	encryptionKey, err := loadEncryptionKey(params.seedEncryptionKeyPath)
	if err != nil {
		return nil, err
	}

	keyID := params.signingKeyID
	if keyID == "" {
		keyID = uuid.NewString()
	}

	return seedcredential.NewStaticTrustManager(keyID, signingKey, encryptionKey)
}

// loadSigningKey reads a PEM-encoded EC private key, or generates an
// ephemeral P-256 key when no path is configured. Ephemeral keys invalidate
// previously issued seed credentials on restart, so production deployments
// configure a path.
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		logger.Warn("No signing key configured, generating an ephemeral key")

		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("signing key is not PEM encoded")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, parseErr := x509.ParsePKCS8PrivateKey(block.Bytes)
		if parseErr != nil {
			return nil, fmt.Errorf("parse signing key: %w", parseErr)
		}

		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("signing key is not an EC key")
		}

		return ecKey, nil
	default:
		return nil, fmt.Errorf("unsupported signing key type %q", block.Type)
	}
}

// loadEncryptionKey reads a hex-encoded 32-byte key, or generates an
// ephemeral one when no path is configured.
func loadEncryptionKey(path string) ([]byte, error) {
	if path == "" {
		logger.Warn("No seed encryption key configured, generating an ephemeral key")

		key := make([]byte, encryptionKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}

		return key, nil
	}

	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("read seed encryption key: %w", err)
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode seed encryption key: %w", err)
	}

	if len(key) != encryptionKeySize {
		return nil, fmt.Errorf("seed encryption key must be %d bytes", encryptionKeySize)
	}

	return key, nil
}
