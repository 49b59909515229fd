// Package client implements the CLI-side HTTP client for the wire
// protocol (C2): it POSTs/GETs ciphertext against the server's
// /api/v1/secret endpoints and never sees a plaintext byte or key.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hakanai/hakanai/internal/wire"
)

// Error is a stable, comparable client-side error carrying the
// server's wire.ErrorCode (or a local transport code) and message.
type Error struct {
	Code    wire.ErrorCode
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Client is a minimal HTTP client for the hakanai wire protocol.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
}

// New returns a Client. An empty bearerToken means anonymous
// uploads, subject to the server's configured anonymous size limit.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		HTTPClient:  &http.Client{},
	}
}

// CreateParams is the input to Create.
type CreateParams struct {
	Ciphertext   string
	ExpiresIn    time.Duration
	Restrictions *wire.Restrictions

	// OnProgress, if set, is called with the cumulative number of
	// request body bytes written to the wire. Every call resets the
	// upload watchdog (spec.md §5/§9): if ten seconds pass with no
	// call, the upload is aborted.
	OnProgress func(sent int64)
}

// Create implements C2's create operation: POST ciphertext, get back
// a secret ID. The returned error is always a *Error on failure.
func (c *Client) Create(ctx context.Context, p CreateParams) (string, error) {
	body, err := json.Marshal(wire.CreateSecretRequest{
		Data:         p.Ciphertext,
		ExpiresIn:    int64(p.ExpiresIn.Seconds()),
		Restrictions: p.Restrictions,
	})
	if err != nil {
		return "", &Error{Code: wire.ErrSendFailed, Message: "encode request"}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader := io.Reader(bytes.NewReader(body))
	if p.OnProgress != nil {
		reader = newWatchdogReader(ctx, cancel, reader, p.OnProgress)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/secret", reader)
	if err != nil {
		return "", &Error{Code: wire.ErrSendFailed, Message: "build request"}
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "application/json")
	c.applyCommonHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &Error{Code: wire.ErrSendFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp, wire.ErrSendFailed)
	}

	var out wire.CreateSecretResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Code: wire.ErrInvalidServerResponse, Message: "decode response"}
	}
	return out.ID, nil
}

// Retrieve implements C2's retrieve operation: GET the raw ciphertext
// for id, optionally gated by passphraseHash (hex SHA-256). Sets
// Accept-Encoding: identity so the caller can rely on Content-Length
// for a progress display.
func (c *Client) Retrieve(ctx context.Context, id, passphraseHash string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v1/secret/"+id, nil)
	if err != nil {
		return "", &Error{Code: wire.ErrRetrieveFailed, Message: "build request"}
	}
	req.Header.Set(wire.HeaderAcceptEncoding, wire.AcceptEncodingIdentity)
	if passphraseHash != "" {
		req.Header.Set(wire.HeaderSecretPassphrase, passphraseHash)
	}
	c.applyCommonHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &Error{Code: wire.ErrRetrieveFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp, wire.ErrRetrieveFailed)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Code: wire.ErrRetrieveFailed, Message: "read response body"}
	}
	return string(data), nil
}

func (c *Client) applyCommonHeaders(req *http.Request) {
	req.Header.Set(wire.HeaderRequestID, uuid.NewString())
	if c.BearerToken != "" {
		req.Header.Set(wire.HeaderAuthorization, wire.AuthorizationBearerPfx+c.BearerToken)
	}
}

// errorFromResponse decodes a wire.ErrorResponse body, falling back to
// fallback if the body isn't valid JSON (e.g. a proxy-generated 502).
func errorFromResponse(resp *http.Response, fallback wire.ErrorCode) error {
	var body wire.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return &Error{Code: fallback, Message: resp.Status}
	}
	return &Error{Code: body.Code, Message: body.Message}
}
