// Package cliclient is the thin HTTP client tmuxdeckctl drives the server
// API through (§6 CLI surface): it decodes the server's classified-error
// envelope back into an *apperr.Error so the CLI's exit code matches what
// the server already computed.
package cliclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

// Client is a bare net/http wrapper scoped to one tmuxdeckd base URL.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{BaseURL: baseURL, Token: token, HTTP: &http.Client{Timeout: 15 * time.Second}}
}

type errEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var kindByName = map[string]apperr.Kind{
	"Unauthorized":      apperr.Unauthorized,
	"TargetMissing":     apperr.TargetMissing,
	"TargetGone":        apperr.TargetGone,
	"SourceUnavailable": apperr.SourceUnavailable,
	"NameConflict":      apperr.NameConflict,
	"InvalidArgument":   apperr.InvalidArgument,
}

// do issues the request and, on a non-2xx response, decodes the server's
// {"error":{"code","message"}} envelope into a classified *apperr.Error.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceUnavailable, err, "request to %s failed", c.BaseURL)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var env errEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Code != "" {
		kind := kindByName[env.Error.Code]
		return nil, apperr.New(kind, "%s", env.Error.Message)
	}
	return nil, apperr.New(apperr.Internal, "unexpected response %d: %s", resp.StatusCode, string(body))
}

// GetJSON GETs path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "build request")
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetBytes GETs path and returns the raw response body.
func (c *Client) GetBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "build request")
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// PostJSON POSTs body as JSON to path, decoding the JSON response into out
// (nil discards the body).
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "encode request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PathEscapeTarget builds the "/containers/{id}/sessions/{name}/windows/{index}"
// segment shared by the capture and screenshot subcommands (both call the
// capture route).
func PathEscapeTarget(containerID, sessionName string, windowIndex int) string {
	return fmt.Sprintf("/containers/%s/sessions/%s/windows/%d", containerID, sessionName, windowIndex)
}
