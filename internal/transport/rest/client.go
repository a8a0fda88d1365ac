package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Client talks to the marketplace chat backend. Every call is a single
// attempt: no retries, no backoff. Callers decide whether to surface an
// error, retry manually, or roll back.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	userID  string
	log     *zap.SugaredLogger
}

type Options struct {
	BaseURL string
	Token   string
	// UserID is the authenticated user's id, used to tell own messages
	// apart from the counterparty's.
	UserID  string
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		userID:  opts.UserID,
		log:     log,
	}
}

// do issues one authenticated request and decodes the envelope into out.
// Non-2xx responses become a TransportError; bodies that fail to decode
// become a ProtocolError.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &ProtocolError{Reason: "encoding request body: " + err.Error()}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		c.log.Debugw("request failed", "method", method, "path", path, "status", resp.StatusCode)
		return &TransportError{Status: resp.StatusCode}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProtocolError{Reason: "decoding response body: " + err.Error()}
	}

	return nil
}
