/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// New returns a new mongo health check.
func New(mongoDBURL string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoDBURL))
		if err != nil {
			return fmt.Errorf("failed to connect to mongo: %w", err)
		}

		defer func() {
			_ = client.Disconnect(ctx)
		}()

		if err = client.Ping(ctx, readpref.Primary()); err != nil {
			return fmt.Errorf("failed to ping mongo: %w", err)
		}

		return nil
	}
}
