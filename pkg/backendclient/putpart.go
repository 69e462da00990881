package backendclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// PutPartResult is the outcome of a direct part PUT.
type PutPartResult struct {
	// ETag is the object store's identifier for this part, required
	// verbatim by Complete. If the response carried no ETag header, this is
	// "unknown" and the part is still treated as uploaded (§4.2).
	ETag string
}

// PutPart uploads one contiguous byte range to a pre-signed URL, following
// the caller-specified headers from PresignPartResponse verbatim. It bypasses
// the typed RPC path because the body is raw bytes and the result is read
// from a response header, not a JSON payload.
func (c *Client) PutPart(ctx context.Context, presignedURL string, headers map[string]string, contentType string, body io.Reader, size int64) (*PutPartResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presignedURL, body)
	if err != nil {
		return nil, uploadmodel.NewEngineError("put_part", "", 0, fmt.Errorf("%w: %v", uploadmodel.ErrInternal, err))
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, uploadmodel.NewEngineError("put_part", "", 0, fmt.Errorf("%w: %v", uploadmodel.ErrTransport, err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, classifyHTTPError("put_part", resp.StatusCode, respBody)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		etag = "unknown"
	}
	return &PutPartResult{ETag: etag}, nil
}
