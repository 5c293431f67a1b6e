/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package clientconfiguration tracks the wallet client ids the issuer
// accepts. Registration is static configuration, not dynamic.
package clientconfiguration

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Service answers whether a client id belongs to a registered wallet.
type Service struct {
	clients map[uuid.UUID]struct{}
}

// New creates a Service from the configured client id list.
func New(clientIDs []string) (*Service, error) {
	clients := make(map[uuid.UUID]struct{}, len(clientIDs))

	for _, raw := range lo.Uniq(clientIDs) {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("client configuration: invalid client id %q: %w", raw, err)
		}

		clients[id] = struct{}{}
	}

	return &Service{clients: clients}, nil
}

// IsRegistered reports whether the client id is configured.
func (s *Service) IsRegistered(clientID uuid.UUID) bool {
	_, ok := s.clients[clientID]

	return ok
}
