// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"context"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"

	"github.com/luxfi/depository/crypto/fhe"
)

// newHealthHandler checks that the backend can serve its network key, and
// runs check when one is given.
func newHealthHandler(backend fhe.Relayer, check func(context.Context) error) http.Handler {
	opts := []health.CheckerOption{
		health.WithCacheDuration(time.Second),
		health.WithTimeout(5 * time.Second),
		health.WithCheck(health.Check{
			Name: "network-key",
			Check: func(ctx context.Context) error {
				_, err := backend.NetworkKey(ctx)
				return err
			},
		}),
	}
	if check != nil {
		opts = append(opts, health.WithCheck(health.Check{
			Name:  "relayer-health",
			Check: check,
		}))
	}
	return health.NewHandler(health.NewChecker(opts...))
}
