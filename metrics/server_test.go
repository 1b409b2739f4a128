// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistries(t *testing.T) {
	require := require.New(t)

	root, registerers, err := Registries("vault", "relayer")
	require.NoError(err)
	require.Len(registerers, 2)

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ops_total", Help: "ops"})
	registerers["vault"].MustRegister(counter)
	counter.Inc()

	count, err := testutil.GatherAndCount(root, "vault_ops_total")
	require.NoError(err)
	require.Equal(1, count)

	_, _, err = Registries("a", "a")
	require.Error(err)
}
