// Package gatewayclient talks to the operator API of a running central
// system.
package gatewayclient

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
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 45 * time.Second},
	}
}

// APIError is a non-2xx reply of the operator API.
type APIError struct {
	Status  int
	Message string
	Details any
}

func (e *APIError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// NotConnected reports whether the charger was unreachable.
func (e *APIError) NotConnected() bool { return e.Status == http.StatusNotFound }

type Charger struct {
	Identity  string `json:"identity"`
	Connected bool   `json:"connected"`
}

type CommandResult struct {
	OcppResponse json.RawMessage `json:"ocppResponse"`
}

func (c *Client) Chargers(ctx context.Context) ([]Charger, error) {
	var out struct {
		Chargers []Charger `json:"chargers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chargers", nil, &out); err != nil {
		return nil, err
	}
	return out.Chargers, nil
}

// RemoteStart asks the server to start a transaction. A nil connectorId
// lets the server pick its default.
func (c *Client) RemoteStart(ctx context.Context, identity, idTag string, connectorId *int) (*CommandResult, error) {
	body := map[string]any{"idTag": idTag}
	if connectorId != nil {
		body["connectorId"] = *connectorId
	}
	var out CommandResult
	if err := c.do(ctx, http.MethodPost, "/api/chargers/"+url.PathEscape(identity)+"/remote-start", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoteStop(ctx context.Context, identity string, transactionId int) (*CommandResult, error) {
	var out CommandResult
	body := map[string]any{"transactionId": transactionId}
	if err := c.do(ctx, http.MethodPost, "/api/chargers/"+url.PathEscape(identity)+"/remote-stop", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
		Details any             `json:"details"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(b))}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error, Details: env.Details}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
