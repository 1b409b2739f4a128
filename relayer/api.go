// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/depository/crypto/fhe"
)

const (
	KeysPath        = "/v1/keys"
	InputProofPath  = "/v1/input-proof"
	UserDecryptPath = "/v1/user-decrypt"
	HealthPath      = "/health"

	// Bodies larger than this are rejected before decoding.
	maxRequestBytes = 1 << 20

	defaultRequestTimeout = 30 * time.Second
)

// Error codes carried in error responses. The client maps them back to the
// fhe sentinels.
const (
	codeInvalidRequest = "invalid_request"
	codeUnauthorized   = "unauthorized"
	codeNotAllowed     = "not_allowed"
	codeUnknownHandle  = "unknown_handle"
	codeInternal       = "internal"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewHandler serves the relayer API in front of backend. health reports the
// readiness of the backend; nil always reports healthy.
func NewHandler(
	logger *zap.Logger,
	metrics *RelayerMetrics,
	backend fhe.Relayer,
	health func(context.Context) error,
) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+KeysPath, keysAPIHandler(logger, metrics, backend))
	mux.Handle("POST "+InputProofPath, inputProofAPIHandler(logger, metrics, backend))
	mux.Handle("POST "+UserDecryptPath, userDecryptAPIHandler(logger, metrics, backend))
	mux.Handle(HealthPath, newHealthHandler(backend, health))
	return mux
}

func writeJSONError(
	logger *zap.Logger,
	w http.ResponseWriter,
	httpStatusCode int,
	code string,
	errorMsg string,
) {
	resp, err := json.Marshal(
		ErrorResponse{
			Error: errorMsg,
			Code:  code,
		},
	)
	if err != nil {
		msg := "Error marshalling JSON error response"
		logger.Error(msg, zap.Error(err))
		resp = []byte(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)

	_, err = w.Write(resp)
	if err != nil {
		logger.Error("Error writing error response", zap.Error(err))
	}
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, v interface{}) {
	resp, err := json.Marshal(v)
	if err != nil {
		msg := "Failed to marshal response"
		logger.Error(msg, zap.Error(err))
		writeJSONError(logger, w, http.StatusInternalServerError, codeInternal, msg)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(resp)
	if err != nil {
		logger.Error("Error writing response", zap.Error(err))
	}
}

// statusOf maps a backend failure to an HTTP status and error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, fhe.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, fhe.ErrNotAllowed):
		return http.StatusForbidden, codeNotAllowed
	case errors.Is(err, fhe.ErrUnknownHandle):
		return http.StatusBadRequest, codeUnknownHandle
	case errors.Is(err, fhe.ErrInvalidCiphertext), errors.Is(err, fhe.ErrTypeMismatch):
		return http.StatusBadRequest, codeInvalidRequest
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func decodeRequest(logger *zap.Logger, w http.ResponseWriter, r *http.Request, v interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		msg := "Could not decode request body"
		logger.Warn(msg, zap.Error(err))
		writeJSONError(logger, w, http.StatusBadRequest, codeInvalidRequest, msg)
		return false
	}
	return true
}

func keysAPIHandler(
	logger *zap.Logger,
	metrics *RelayerMetrics,
	backend fhe.Relayer,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.RequestCount.WithLabelValues(KeysPath).Inc()

		key, err := backend.NetworkKey(r.Context())
		if err != nil {
			logger.Error("Failed to get network key", zap.Error(err))
			metrics.FailedRequestCount.WithLabelValues(KeysPath, codeInternal).Inc()
			writeJSONError(logger, w, http.StatusInternalServerError, codeInternal, "failed to get network key")
			return
		}
		writeJSON(logger, w, key)
	})
}

func inputProofAPIHandler(
	logger *zap.Logger,
	metrics *RelayerMetrics,
	backend fhe.Relayer,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.RequestCount.WithLabelValues(InputProofPath).Inc()
		startTime := time.Now()

		var req fhe.InputProofRequest
		if !decodeRequest(logger, w, r, &req) {
			metrics.FailedRequestCount.WithLabelValues(InputProofPath, codeInvalidRequest).Inc()
			return
		}
		if len(req.Ciphertexts) == 0 {
			metrics.FailedRequestCount.WithLabelValues(InputProofPath, codeInvalidRequest).Inc()
			writeJSONError(logger, w, http.StatusBadRequest, codeInvalidRequest, "Must provide at least one ciphertext")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
		defer cancel()

		resp, err := backend.InputProof(ctx, &req)
		if err != nil {
			status, code := statusOf(err)
			logger.Warn(
				"Failed to issue input proof",
				zap.Stringer("contract", req.ContractAddress),
				zap.Stringer("user", req.UserAddress),
				zap.Error(err),
			)
			metrics.FailedRequestCount.WithLabelValues(InputProofPath, code).Inc()
			writeJSONError(logger, w, status, code, err.Error())
			return
		}
		writeJSON(logger, w, resp)
		metrics.RequestLatencyMS.WithLabelValues(InputProofPath).Set(
			float64(time.Since(startTime).Milliseconds()),
		)
	})
}

func userDecryptAPIHandler(
	logger *zap.Logger,
	metrics *RelayerMetrics,
	backend fhe.Relayer,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.RequestCount.WithLabelValues(UserDecryptPath).Inc()
		startTime := time.Now()

		var req fhe.UserDecryptRequest
		if !decodeRequest(logger, w, r, &req) {
			metrics.FailedRequestCount.WithLabelValues(UserDecryptPath, codeInvalidRequest).Inc()
			return
		}
		if len(req.HandleContractPairs) == 0 {
			metrics.FailedRequestCount.WithLabelValues(UserDecryptPath, codeInvalidRequest).Inc()
			writeJSONError(logger, w, http.StatusBadRequest, codeInvalidRequest, "Must provide at least one handle")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
		defer cancel()

		resp, err := backend.UserDecrypt(ctx, &req)
		if err != nil {
			status, code := statusOf(err)
			logger.Warn(
				"Failed to decrypt for user",
				zap.Stringer("user", req.UserAddress),
				zap.Int("handles", len(req.HandleContractPairs)),
				zap.Error(err),
			)
			metrics.FailedRequestCount.WithLabelValues(UserDecryptPath, code).Inc()
			writeJSONError(logger, w, status, code, err.Error())
			return
		}
		writeJSON(logger, w, resp)
		metrics.RequestLatencyMS.WithLabelValues(UserDecryptPath).Set(
			float64(time.Since(startTime).Milliseconds()),
		)
	})
}
