// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/depository/crypto/fhe"
)

const (
	defaultClientTimeout = 30 * time.Second

	// User decrypt responses grow with the number of handles requested.
	maxResponseBytes = 16 << 20
)

var _ fhe.Relayer = (*Client)(nil)

// Client is an fhe.Relayer reached over HTTP.
type Client struct {
	logger  *zap.Logger
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the relayer at baseURL. A nil httpClient
// uses a client with a 30 second timeout.
func NewClient(logger *zap.Logger, baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.ParseRequestURI(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relayer url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		logger:  logger.With(zap.String("relayer", u.Host)),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}, nil
}

func (c *Client) NetworkKey(ctx context.Context) (*fhe.NetworkKey, error) {
	var key fhe.NetworkKey
	if err := c.do(ctx, http.MethodGet, KeysPath, nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

func (c *Client) InputProof(ctx context.Context, req *fhe.InputProofRequest) (*fhe.InputProofResponse, error) {
	var resp fhe.InputProofResponse
	if err := c.do(ctx, http.MethodPost, InputProofPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) UserDecrypt(ctx context.Context, req *fhe.UserDecryptRequest) (*fhe.UserDecryptResponse, error) {
	var resp fhe.UserDecryptResponse
	if err := c.do(ctx, http.MethodPost, UserDecryptPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", fhe.ErrRelayer, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn(
			"Failed to reach relayer",
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", fhe.ErrRelayer, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", fhe.ErrRelayer, err)
	}
	if len(payload) > maxResponseBytes {
		return fmt.Errorf("%w: %s response exceeds %d bytes", fhe.ErrRelayer, path, maxResponseBytes)
	}
	if resp.StatusCode != http.StatusOK {
		return responseError(resp.StatusCode, payload)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: malformed %s response: %v", fhe.ErrRelayer, path, err)
	}
	return nil
}

func responseError(status int, payload []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(payload, &errResp); err != nil || errResp.Error == "" {
		errResp.Error = http.StatusText(status)
	}
	switch errResp.Code {
	case codeUnauthorized:
		return fmt.Errorf("%w: %s", fhe.ErrUnauthorized, errResp.Error)
	case codeNotAllowed:
		return fmt.Errorf("%w: %s", fhe.ErrNotAllowed, errResp.Error)
	case codeUnknownHandle:
		return fmt.Errorf("%w: %w: %s", fhe.ErrRelayer, fhe.ErrUnknownHandle, errResp.Error)
	}
	if status == http.StatusForbidden {
		return fmt.Errorf("%w: %s", fhe.ErrUnauthorized, errResp.Error)
	}
	return fmt.Errorf("%w: status %d: %s", fhe.ErrRelayer, status, errResp.Error)
}
