// Package backendclient implements the four JSON-over-HTTPS RPCs a
// customer-operated upload backend exposes, plus the direct PUT against the
// pre-signed URL the backend hands back (§4.2).
package backendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// TokenProvider supplies the bearer token attached to every JSON RPC. The
// part PUT carries no Authorization header; it sends only the pre-signed
// URL's own headers.
// The reference implementation lives in pkg/tokenprovider.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client is the Backend Client (§4.2): a typed JSON RPC client plus a raw
// PUT path for the part upload itself.
type Client struct {
	httpClient *http.Client
	tokens     TokenProvider
}

// Timeouts bound the Client's http.Transport independently of each request's
// context deadline, per the minimums named in SPEC_FULL.md §4.2.
type Timeouts struct {
	Connect time.Duration
	Write   time.Duration
	Read    time.Duration
}

// DefaultTimeouts returns the minimum timeouts SPEC_FULL.md requires.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: 30 * time.Second,
		Write:   120 * time.Second,
		Read:    60 * time.Second,
	}
}

// New builds a Client. tokens may be nil, in which case no Authorization
// header is sent.
func New(tokens TokenProvider, timeouts Timeouts) *Client {
	dialer := &net.Dialer{Timeout: timeouts.Connect}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext:           dialer.DialContext,
				ResponseHeaderTimeout: timeouts.Read,
			},
			Timeout: timeouts.Connect + timeouts.Write + timeouts.Read,
		},
		tokens: tokens,
	}
}

// InitiateRequest is the body of the Initiate RPC.
type InitiateRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
}

// InitiateResponse is the backend's answer to Initiate.
type InitiateResponse struct {
	UploadID string `json:"upload_id"`
	FilePath string `json:"file_path"`
	Key      string `json:"key,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
}

// PresignPartRequest is the body of the Presign Part RPC.
type PresignPartRequest struct {
	UploadID   string `json:"upload_id"`
	FilePath   string `json:"file_path"`
	PartNumber int    `json:"part_number"`
}

// PresignPartResponse is the backend's answer to Presign Part.
type PresignPartResponse struct {
	PresignedURL string            `json:"presigned_url"`
	PartNumber   int               `json:"part_number"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// CompletedPart identifies one uploaded part by number and ETag, as sent to
// Complete and returned from a successful part PUT.
type CompletedPart struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
}

// CompleteRequest is the body of the Complete RPC.
type CompleteRequest struct {
	UploadID string          `json:"upload_id"`
	FilePath string          `json:"file_path"`
	Parts    []CompletedPart `json:"parts"`
}

// CompleteResponse is the backend's answer to Complete.
type CompleteResponse struct {
	FilePath string `json:"file_path"`
	Location string `json:"location,omitempty"`
	ETag     string `json:"etag,omitempty"`
}

// AbortRequest is the body of the Abort RPC.
type AbortRequest struct {
	UploadID string `json:"upload_id"`
	FilePath string `json:"file_path"`
}

// AbortResponse is the backend's best-effort answer to Abort.
type AbortResponse struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// Initiate starts a multipart upload on the backend.
func (c *Client) Initiate(ctx context.Context, url string, req InitiateRequest) (*InitiateResponse, error) {
	var resp InitiateResponse
	if err := c.doJSON(ctx, "initiate", url, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PresignPart requests a pre-signed URL for one part.
func (c *Client) PresignPart(ctx context.Context, url string, req PresignPartRequest) (*PresignPartResponse, error) {
	var resp PresignPartResponse
	if err := c.doJSON(ctx, "presign_part", url, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Complete finalizes a multipart upload. Parts are sorted by part number
// ascending before being sent, per §4.2.
func (c *Client) Complete(ctx context.Context, url string, req CompleteRequest) (*CompleteResponse, error) {
	sorted := make([]CompletedPart, len(req.Parts))
	copy(sorted, req.Parts)
	sortCompletedParts(sorted)
	req.Parts = sorted

	var resp CompleteResponse
	if err := c.doJSON(ctx, "complete", url, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Abort tells the backend to discard a multipart upload. The engine treats
// any response, including a transport or protocol error, as "best-effort
// aborted" and does not retry it; the error is returned only for logging.
func (c *Client) Abort(ctx context.Context, url string, req AbortRequest) (*AbortResponse, error) {
	var resp AbortResponse
	err := c.doJSON(ctx, "abort", url, req, &resp)
	return &resp, err
}

func sortCompletedParts(parts []CompletedPart) {
	for i := 1; i < len(parts); i++ {
		for j := i; j > 0 && parts[j].PartNumber < parts[j-1].PartNumber; j-- {
			parts[j], parts[j-1] = parts[j-1], parts[j]
		}
	}
}

// envelope lets doJSON accept both the wrapped `{success, message, data}`
// shape and the unwrapped root-level shape on every response (§6).
type envelope struct {
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *Client) doJSON(ctx context.Context, op, url string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return uploadmodel.NewEngineError(op, "", 0, fmt.Errorf("%w: %v", uploadmodel.ErrInternal, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return uploadmodel.NewEngineError(op, "", 0, fmt.Errorf("%w: %v", uploadmodel.ErrInternal, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setAuth(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return uploadmodel.NewEngineError(op, "", 0, fmt.Errorf("%w: %v", uploadmodel.ErrTransport, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return uploadmodel.NewEngineError(op, "", 0, fmt.Errorf("%w: %v", uploadmodel.ErrTransport, err))
	}

	if resp.StatusCode >= 400 {
		return classifyHTTPError(op, resp.StatusCode, respBody)
	}

	if result == nil {
		return nil
	}
	return unmarshalEnvelope(op, respBody, result)
}

func unmarshalEnvelope(op string, raw []byte, result any) error {
	if len(raw) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return uploadmodel.NewEngineError(op, "", 0, fmt.Errorf("%w: %v", uploadmodel.ErrProtocol, err))
		}
		return nil
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return uploadmodel.NewEngineError(op, "", 0, fmt.Errorf("%w: %v", uploadmodel.ErrProtocol, err))
	}
	return nil
}

func classifyHTTPError(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	err := uploadmodel.NewEngineError(op, "", 0, fmt.Errorf("%w: status %d: %s", classifyStatus(status), status, msg))
	err.HTTPStatus = status
	return err
}

func classifyStatus(status int) error {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
		return uploadmodel.ErrHTTPServer
	}
	return uploadmodel.ErrHTTPClient
}

func (c *Client) setAuth(ctx context.Context, req *http.Request) {
	if c.tokens == nil {
		return
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "token provider failed, sending request without Authorization header", "error", err)
		return
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
