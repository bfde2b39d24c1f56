// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package remote implements the storage backend that talks to the
// loopback file-server process over HTTP+JSON. Records travel with
// images inlined as data URIs; the server owns their on-disk layout.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/storage"
)

// DefaultProbeTimeout bounds the reachability check. The server is a
// loopback process; anything slower than this is as good as absent.
const DefaultProbeTimeout = 2 * time.Second

// Client is the remote-backend HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize probes the server with a lightweight stats request. An
// unreachable or unhealthy server is routine unavailability.
func (c *Client) Initialize(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("remote backend unreachable", "url", c.baseURL, "err", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Mode identifies this backend.
func (c *Client) Mode() storage.Mode { return storage.ModeRemote }

// SaveRecord posts the full record, image inlined as a data URI. The
// server persists the image to its own file tree.
func (c *Client) SaveRecord(ctx context.Context, record *core.Record) error {
	body, err := storage.MarshalRecord(record)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/entries", body, nil)
}

// GetRecord fetches one record, or (nil, nil) if the server has none.
func (c *Client) GetRecord(ctx context.Context, id string) (*core.Record, error) {
	var record *core.Record
	err := c.do(ctx, http.MethodGet, "/entries/"+url.PathEscape(id), nil, &record)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// GetAllRecords lists records at thumbnail fidelity.
func (c *Client) GetAllRecords(ctx context.Context) ([]*core.Record, error) {
	var records []*core.Record
	if err := c.do(ctx, http.MethodGet, "/entries", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetAllRecordsForExport lists records with original full-resolution
// images.
func (c *Client) GetAllRecordsForExport(ctx context.Context) ([]*core.Record, error) {
	var records []*core.Record
	if err := c.do(ctx, http.MethodGet, "/entries?images=full", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteRecord deletes by ID. A server-side miss is not an error.
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/entries/"+url.PathEscape(id), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// SaveConfig stores a named config value.
func (c *Client) SaveConfig(ctx context.Context, key string, value json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/config/"+url.PathEscape(key), value, nil)
}

// GetConfig fetches a named config value, or (nil, nil) if absent.
func (c *Client) GetConfig(ctx context.Context, key string) (json.RawMessage, error) {
	var value json.RawMessage
	err := c.do(ctx, http.MethodGet, "/config/"+url.PathEscape(key), nil, &value)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

// Stats fetches the server's usage report.
func (c *Client) Stats(ctx context.Context) (*storage.Stats, error) {
	var stats storage.Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ClearAll asks the server to wipe its store.
func (c *Client) ClearAll(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/clear", nil, nil)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// statusError carries the server's error payload alongside its status.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.status, e.message)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return translateStatus(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}
	return nil
}

// translateStatus maps the server's error responses onto the storage
// error taxonomy. The payload is {"error": "..."} per the wire
// contract.
func translateStatus(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	if payload.Error == "" {
		payload.Error = http.StatusText(status)
	}

	se := &statusError{status: status, message: payload.Error}
	switch status {
	case http.StatusNotFound:
		return se
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", storage.ErrPermissionDenied, se)
	case http.StatusInsufficientStorage, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %w", storage.ErrQuotaExceeded, se)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, se)
	default:
		return fmt.Errorf("%w: %w", storage.ErrTransient, se)
	}
}

var _ storage.Backend = (*Client)(nil)
