package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/protocol"
	"github.com/dougsko/cwbeacon/pkg/remote"
)

// APIClient talks to the beacond HTTP API
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client for the daemon at baseURL, for example
// "http://beacon.local:8080"
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Do sends a request to an API path and decodes the response envelope.
// A non-nil body is sent as JSON.
func (c *APIClient) Do(method, path string, body interface{}) (*protocol.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode error: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	var response protocol.Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("parse error (HTTP %d): %w", resp.StatusCode, err)
	}

	return &response, nil
}

// decode converts one field of a response's data into out
func decode(resp *protocol.Response, key string, out interface{}) error {
	value, ok := resp.Data[key]
	if !ok {
		return fmt.Errorf("%s not found in response", key)
	}

	// Convert to JSON and back to parse properly
	data, _ := json.Marshal(value)
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return nil
}

// GetStatus gets the current daemon status
func (c *APIClient) GetStatus() (*protocol.Status, error) {
	resp, err := c.Do(http.MethodGet, "/api/v1/status", nil)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("status error: %s", resp.Error)
	}

	var status protocol.Status
	if err := decode(resp, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetSettings gets the live beacon settings
func (c *APIClient) GetSettings() (*beacon.Settings, error) {
	resp, err := c.Do(http.MethodGet, "/api/v1/config", nil)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("config error: %s", resp.Error)
	}

	var settings beacon.Settings
	if err := decode(resp, "settings", &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SendCommand submits a "field=value" command and returns the resulting
// status: applied or persisted
func (c *APIClient) SendCommand(command string) (string, error) {
	resp, err := c.Do(http.MethodPost, "/api/v1/command", protocol.CommandRequest{Command: command})
	if err != nil {
		return "", err
	}

	if !resp.Success {
		return "", fmt.Errorf("command error: %s", resp.Error)
	}

	status, _ := resp.Data["status"].(string)
	return status, nil
}

// GetCommands gets journaled commands, newest first
func (c *APIClient) GetCommands(limit int, status string) ([]remote.CommandRecord, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if status != "" {
		query.Set("status", status)
	}

	path := "/api/v1/journal/commands"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp, err := c.Do(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("journal error: %s", resp.Error)
	}

	var records []remote.CommandRecord
	if _, ok := resp.Data["commands"]; !ok {
		return records, nil
	}
	if err := decode(resp, "commands", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetCycles gets journaled beacon cycles, newest first
func (c *APIClient) GetCycles(limit int) ([]beacon.CycleReport, error) {
	path := "/api/v1/journal/cycles"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	resp, err := c.Do(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("journal error: %s", resp.Error)
	}

	var cycles []beacon.CycleReport
	if _, ok := resp.Data["cycles"]; !ok {
		return cycles, nil
	}
	if err := decode(resp, "cycles", &cycles); err != nil {
		return nil, err
	}
	return cycles, nil
}

// IsConnected tests if the daemon is reachable
func (c *APIClient) IsConnected() bool {
	_, err := c.GetStatus()
	return err == nil
}
