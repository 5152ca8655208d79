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

// DeleteUpload asks the intake API to drop an upload. Used by cancellation as
// a best-effort cleanup; a 404 means the record is already gone and is
// reported as success=false rather than an error.
func DeleteUpload(ctx context.Context, endpoint, authToken, uploadID string) (*types.DeleteResponse, error) {
	if endpoint == "" || uploadID == "" {
		return nil, fmt.Errorf("invalid parameters: endpoint and uploadID must not be empty")
	}

	url := tool.BuildDeleteUploadURL(endpoint, uploadID)
	req, err := tool.NewJSONReq(http.NewRequestWithContext(ctx, http.MethodDelete, url, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create delete request: %v", err)
	}
	tool.WithAuth(req, authToken)

	client := tool.GetHttpClient()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("delete request canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to send delete request: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		tool.DefaultLogger.Warnf("Failed to read delete response body: %v", readErr)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		if len(body) == 0 {
			return &types.DeleteResponse{Success: true}, nil
		}
		var response types.DeleteResponse
		if err := sonic.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("failed to parse delete response: %v", err)
		}
		tool.DefaultLogger.Infof("Delete request for %s acknowledged (success=%v)", uploadID, response.Success)
		return &response, nil
	case http.StatusNoContent:
		return &types.DeleteResponse{Success: true}, nil
	case http.StatusNotFound:
		return &types.DeleteResponse{Success: false}, nil
	case StatusUnauthorized:
		return nil, fmt.Errorf("delete request unauthorized: %s", apiError(body, "check auth_token"))
	default:
		if resp.StatusCode >= StatusServerError {
			return nil, fmt.Errorf("intake server error: %s", resp.Status)
		}
		return nil, fmt.Errorf("delete request failed: %s", resp.Status)
	}
}
