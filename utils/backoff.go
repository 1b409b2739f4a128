// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// DefaultRPCTimeout bounds a single RPC round trip.
const DefaultRPCTimeout = 10 * time.Second

// WithRetriesTimeout uses an exponential backoff to run the operation until it
// succeeds, returns a backoff.Permanent error, ctx is done or the timeout
// limit has been reached.
func WithRetriesTimeout(
	ctx context.Context,
	logger *zap.Logger,
	operation backoff.Operation,
	timeout time.Duration,
	logMessage string,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(timeout),
	)
	notify := func(err error, duration time.Duration) {
		logger.Warn(
			"Operation failed, retrying",
			zap.String("operation", logMessage),
			zap.Duration("retryIn", duration),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(expBackOff, ctx), notify)
}
