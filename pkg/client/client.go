/*
 * Copyright 2025 Threatdeck Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package client is the typed HTTP client for the Threat Hunter backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/threatdeck/threatdeck/pkg/logger"
	"github.com/threatdeck/threatdeck/pkg/models"
)

const defaultHTTPTimeout = 15 * time.Second

var (
	errBaseURLRequired = errors.New("backend base url is required")
)

// Config controls how the backend HTTP client behaves.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  logger.Logger
	HTTP    *http.Client
}

// Client issues requests against the Threat Hunter HTTP API.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	logger  logger.Logger
}

// New constructs a backend client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errBaseURLRequired
	}

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Client{
		baseURL: parsed,
		client:  httpClient,
		logger:  log,
	}, nil
}

// chatRequest is the body of the issue-chat and global-chat endpoints.
type chatRequest struct {
	Query    string            `json:"query"`
	Analysis json.RawMessage   `json:"analysis,omitempty"`
	History  []models.ChatTurn `json:"history"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

type scriptResponse struct {
	Script string `json:"script"`
}

// Dashboard fetches and normalizes the full dashboard snapshot.
func (c *Client) Dashboard(ctx context.Context) (*models.Snapshot, error) {
	var raw models.RawSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &raw); err != nil {
		return nil, err
	}

	return raw.Normalize(), nil
}

// TriggerAnalysis asks the backend to start an analysis cycle.
func (c *Client) TriggerAnalysis(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/analyze", nil, nil)
}

// IgnoreIssue removes an issue server-side. The caller refreshes the
// snapshot on success; there is no optimistic local removal.
func (c *Client) IgnoreIssue(ctx context.Context, issueID string) error {
	return c.do(ctx, http.MethodPost, "/api/issues/"+url.PathEscape(issueID)+"/ignore", nil, nil)
}

// QueryIssue sends one issue-scoped chat turn.
func (c *Client) QueryIssue(ctx context.Context, issueID, query string, history []models.ChatTurn) (string, error) {
	var resp answerResponse

	body := chatRequest{Query: query, History: normalizeHistory(history)}
	if err := c.do(ctx, http.MethodPost, "/api/issues/"+url.PathEscape(issueID)+"/query", body, &resp); err != nil {
		return "", err
	}

	return resp.Answer, nil
}

// AnalyzeChat runs the first, planning phase of a global chat turn. The
// plan is opaque to the client and is passed back verbatim to ExecuteChat.
func (c *Client) AnalyzeChat(ctx context.Context, query string, history []models.ChatTurn) (json.RawMessage, error) {
	var plan json.RawMessage

	body := chatRequest{Query: query, History: normalizeHistory(history)}
	if err := c.do(ctx, http.MethodPost, "/api/chat/analyze", body, &plan); err != nil {
		return nil, err
	}

	return plan, nil
}

// ExecuteChat runs the second, execution phase of a global chat turn.
func (c *Client) ExecuteChat(ctx context.Context, query string, plan json.RawMessage, history []models.ChatTurn) (string, error) {
	var resp answerResponse

	body := chatRequest{Query: query, Analysis: plan, History: normalizeHistory(history)}
	if err := c.do(ctx, http.MethodPost, "/api/chat/execute", body, &resp); err != nil {
		return "", err
	}

	return resp.Answer, nil
}

// GenerateScript requests a remediation script for an issue.
func (c *Client) GenerateScript(ctx context.Context, issueID string) (string, error) {
	var resp scriptResponse

	if err := c.do(ctx, http.MethodPost, "/api/issues/"+url.PathEscape(issueID)+"/generate-script", nil, &resp); err != nil {
		return "", err
	}

	return resp.Script, nil
}

// LogDetail fetches the raw backend log record, returned verbatim for
// inspection display.
func (c *Client) LogDetail(ctx context.Context, logID string) (json.RawMessage, error) {
	var record json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/logs/"+url.PathEscape(logID), nil, &record); err != nil {
		return nil, err
	}

	return record, nil
}

// Settings fetches the backend settings document.
func (c *Client) Settings(ctx context.Context) (map[string]interface{}, error) {
	var settings map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// SaveSettings posts the backend settings document.
func (c *Client) SaveSettings(ctx context.Context, settings map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, "/api/settings", settings, nil)
}

// ClearDB wipes the backend database.
func (c *Client) ClearDB(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/clear_db", nil, nil)
}

// normalizeHistory keeps the wire field an empty array rather than null.
func normalizeHistory(history []models.ChatTurn) []models.ChatTurn {
	if history == nil {
		return []models.ChatTurn{}
	}

	return history
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	target := *c.baseURL
	target.Path = path.Join(target.Path, endpoint)

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warn().
			Str("method", method).
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Backend returned non-2xx status")

		return fmt.Errorf("%s %s: unexpected status %d", method, endpoint, resp.StatusCode)
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}

	return nil
}
