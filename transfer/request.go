package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/types"
)

const (
	StatusInvalidRequest   = 400 // malformed body / missing fields
	StatusUnauthorized     = 401 // missing or bad auth token
	StatusPayloadTooLarge  = 413 // server-side size limit
	StatusUnsupportedMedia = 415 // server-side type rejection
	StatusTooManyRequests  = 429 // throttled
	StatusServerError      = 500 // unknown intake error
)

// RequestUpload asks the intake API for an upload slot. The response carries
// the upload id, the presigned storage URL and the fields that must precede
// the file part. Exactly one call per upload attempt; failures are not
// retried here.
func RequestUpload(ctx context.Context, endpoint, authToken string, request *types.UploadRequest) (*types.UploadResponse, error) {
	if endpoint == "" || request == nil {
		return nil, fmt.Errorf("invalid parameters: endpoint and request must not be empty")
	}

	payload, err := sonic.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload request: %v", err)
	}

	url := tool.BuildRequestUploadURL(endpoint)
	req, err := tool.NewJSONReq(http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %v", err)
	}
	tool.WithAuth(req, authToken)

	client := tool.GetHttpClient()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("upload request canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to send upload request: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		tool.DefaultLogger.Warnf("Failed to read upload response body: %v", readErr)
	} else if len(body) > 0 {
		tool.DefaultLogger.Debugf("Upload request response: %s", string(body))
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if len(body) == 0 {
			return nil, fmt.Errorf("upload response body is empty")
		}
		var response types.UploadResponse
		if err := sonic.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("failed to parse upload response: %v", err)
		}
		if response.UploadID == "" {
			return nil, fmt.Errorf("upload response missing upload_id")
		}
		if response.PresignedURL == "" {
			return nil, fmt.Errorf("upload response missing presigned_url")
		}
		tool.DefaultLogger.Infof("Upload slot granted for %s (upload_id %s)", request.Filename, response.UploadID)
		return &response, nil
	case StatusInvalidRequest:
		return nil, fmt.Errorf("upload request rejected: %s", apiError(body, "invalid request"))
	case StatusUnauthorized:
		return nil, fmt.Errorf("upload request unauthorized: %s", apiError(body, "check auth_token"))
	case StatusPayloadTooLarge:
		return nil, fmt.Errorf("upload request rejected: file exceeds the server size limit")
	case StatusUnsupportedMedia:
		return nil, fmt.Errorf("upload request rejected: unsupported file type")
	case StatusTooManyRequests:
		return nil, fmt.Errorf("upload request throttled: too many requests")
	default:
		if resp.StatusCode >= StatusServerError {
			return nil, fmt.Errorf("intake server error: %s", resp.Status)
		}
		return nil, fmt.Errorf("upload request failed: %s", resp.Status)
	}
}

// apiError pulls the server's error message out of a JSON error body, falling
// back to the given default.
func apiError(body []byte, fallback string) string {
	var e struct {
		Error string `json:"error"`
	}
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &e); err == nil && e.Error != "" {
			return e.Error
		}
	}
	return fallback
}
