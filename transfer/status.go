package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/types"
)

// FetchStatus reads one snapshot of the server-side pipeline for an upload.
// Callers poll this; a single failure is not meaningful on its own.
func FetchStatus(ctx context.Context, endpoint, authToken, uploadID string) (*types.StatusResponse, error) {
	if endpoint == "" || uploadID == "" {
		return nil, fmt.Errorf("invalid parameters: endpoint and uploadID must not be empty")
	}

	url := tool.BuildUploadStatusURL(endpoint, uploadID)
	req, err := tool.NewJSONReq(http.NewRequestWithContext(ctx, http.MethodGet, url, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %v", err)
	}
	tool.WithAuth(req, authToken)

	client := tool.GetHttpClient()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("status request canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to send status request: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		tool.DefaultLogger.Warnf("Failed to read status response body: %v", readErr)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if len(body) == 0 {
			return nil, fmt.Errorf("status response body is empty")
		}
		var response types.StatusResponse
		if err := sonic.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("failed to parse status response: %v", err)
		}
		if response.Status == "" {
			return nil, fmt.Errorf("status response missing status")
		}
		return &response, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("status request failed: upload %s not found", uploadID)
	case StatusUnauthorized:
		return nil, fmt.Errorf("status request unauthorized: %s", apiError(body, "check auth_token"))
	case StatusTooManyRequests:
		return nil, fmt.Errorf("status request throttled: too many requests")
	default:
		if resp.StatusCode >= StatusServerError {
			return nil, fmt.Errorf("intake server error: %s", resp.Status)
		}
		return nil, fmt.Errorf("status request failed: %s", resp.Status)
	}
}
