package autosave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mx-space/drafts/internal/modules/draft"
)

// APIError is a non-2xx reply from the drafts API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("drafts api: status %d", e.Status)
	}
	return fmt.Sprintf("drafts api: status %d: %s", e.Status, e.Message)
}

// Client talks to the drafts HTTP API on behalf of a signed-in user. It is the
// Saver a Synchronizer uses outside tests.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for baseURL (for example http://localhost:2333/api/v1).
// timeout bounds each request and is how the configured autosave timeout is
// enforced; zero means no limit.
func NewClient(baseURL, sessionToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   sessionToken,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetTimeout changes the per-request timeout, usually once the editor config is known.
func (c *Client) SetTimeout(d time.Duration) { c.http.Timeout = d }

// EditorConfig fetches the autosave settings and a fresh owner token.
func (c *Client) EditorConfig(ctx context.Context) (*draft.EditorConfig, error) {
	var out draft.EditorConfig
	if err := c.do(ctx, http.MethodGet, "/drafts/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditToken fetches the edit-session token saves must carry.
func (c *Client) EditToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/edit-token", nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// Load fetches one of the signed-in user's drafts so an editor can resume it.
func (c *Client) Load(ctx context.Context, id uint64) (*draft.Response, error) {
	var out draft.Response
	if err := c.do(ctx, http.MethodGet, "/drafts/"+strconv.FormatUint(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Save posts one draft save. A reply without a positive id is an error.
func (c *Client) Save(ctx context.Context, req *Request) (uint64, error) {
	var out struct {
		ID *json.Number `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/drafts/save", req, &out); err != nil {
		return 0, err
	}
	if out.ID == nil {
		return 0, ErrNoDraftID
	}
	id, err := out.ID.Int64()
	if err != nil || id <= 0 {
		return 0, ErrNoDraftID
	}
	return uint64(id), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
