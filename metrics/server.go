// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Registries creates one registerer per prefix over a shared registry. Metric
// names registered through a prefix are exported as <prefix>_<name>.
func Registries(prefixes ...string) (*prometheus.Registry, map[string]prometheus.Registerer, error) {
	root := prometheus.NewRegistry()
	if err := root.Register(collectors.NewGoCollector()); err != nil {
		return nil, nil, err
	}
	registerers := make(map[string]prometheus.Registerer, len(prefixes))
	for _, prefix := range prefixes {
		if _, ok := registerers[prefix]; ok {
			return nil, nil, fmt.Errorf("duplicate metrics prefix %q", prefix)
		}
		registerers[prefix] = prometheus.WrapRegistererWithPrefix(prefix+"_", root)
	}
	return root, registerers, nil
}

// StartMetricsServer serves the registries on /metrics at port. The server
// runs until it is shut down.
func StartMetricsServer(
	logger *zap.Logger,
	port uint16,
	prefixes []string,
) (map[string]prometheus.Registerer, *http.Server, error) {
	root, registerers, err := Registries(prefixes...)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(root, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on metrics port %d: %w", port, err)
	}
	go func() {
		logger.Info("Starting metrics server", zap.Uint16("port", port))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return registerers, server, nil
}
