/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pinretry implements the lockout counter limiting how often a wallet
// may fail the PIN-bound proofs of a seed credential redemption.
package pinretry

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
)

// ErrLocked is returned when the counter reached the maximum number of
// failed attempts. The seed credential is unusable until the counter expires.
var ErrLocked = errors.New("pin locked")

// ErrCounterNotFound is returned when no live counter exists for a key.
var ErrCounterNotFound = errors.New("pin retry counter not found")

// Counter is one lockout record, keyed by the digest of the client instance
// key the seed credential is bound to.
type Counter struct {
	Digest    string
	Value     int
	ExpiresAt time.Time
}

type counterStore interface {
	Create(ctx context.Context, counter *Counter) error
	Find(ctx context.Context, digest string) (*Counter, error)
	Update(ctx context.Context, counter *Counter) error
}

// Config wires a Service.
type Config struct {
	Store       counterStore
	MaxAttempts int
	Validity    time.Duration
}

// Service maintains PIN retry counters.
type Service struct {
	store       counterStore
	maxAttempts int
	validity    time.Duration
}

// NewService creates a Service.
func NewService(config *Config) *Service {
	return &Service{
		store:       config.Store,
		maxAttempts: config.MaxAttempts,
		validity:    config.Validity,
	}
}

// KeyDigest derives the counter id from a client instance key.
func KeyDigest(key *jose.JSONWebKey) (string, error) {
	raw, err := key.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal key: %w", err)
	}

	sum := sha256.Sum256(raw)

	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// Initialize resets the counter for the key to zero. Called when a seed
// credential is issued; any previous lockout for the same key is superseded.
func (s *Service) Initialize(ctx context.Context, key *jose.JSONWebKey) error {
	digest, err := KeyDigest(key)
	if err != nil {
		return err
	}

	return s.store.Create(ctx, &Counter{
		Digest:    digest,
		Value:     0,
		ExpiresAt: time.Now().UTC().Add(s.validity),
	})
}

// Load resolves the counter for the key and enforces the lockout. It returns
// the digest for later Increment calls. A missing counter means the seed
// outlived its lockout record and is rejected as ErrCounterNotFound.
func (s *Service) Load(ctx context.Context, key *jose.JSONWebKey) (string, error) {
	digest, err := KeyDigest(key)
	if err != nil {
		return "", err
	}

	counter, err := s.store.Find(ctx, digest)
	if err != nil {
		return "", err
	}

	if counter.Value >= s.maxAttempts {
		return digest, ErrLocked
	}

	return digest, nil
}

// Increment records one failed PIN-bound verification. When the increment
// exhausts the allowance the returned error is ErrLocked; otherwise the
// failure that triggered the increment stands on its own.
func (s *Service) Increment(ctx context.Context, digest string) error {
	counter, err := s.store.Find(ctx, digest)
	if err != nil {
		return err
	}

	counter.Value++

	if err = s.store.Update(ctx, counter); err != nil {
		return err
	}

	if counter.Value >= s.maxAttempts {
		return ErrLocked
	}

	return nil
}
