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

// NotifyComplete tells the intake API the byte transfer finished so the scan
// pipeline can start. At most one call per upload attempt.
func NotifyComplete(ctx context.Context, endpoint, authToken string, request *types.CompleteRequest) (*types.CompleteResponse, error) {
	if endpoint == "" || request == nil {
		return nil, fmt.Errorf("invalid parameters: endpoint and request must not be empty")
	}
	if request.UploadID == "" {
		return nil, fmt.Errorf("invalid parameters: upload_id must not be empty")
	}

	payload, err := sonic.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal complete request: %v", err)
	}

	url := tool.BuildCompleteUploadURL(endpoint)
	req, err := tool.NewJSONReq(http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to create complete request: %v", err)
	}
	tool.WithAuth(req, authToken)

	client := tool.GetHttpClient()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("complete request canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to send complete request: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		tool.DefaultLogger.Warnf("Failed to read complete response body: %v", readErr)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if len(body) == 0 {
			// Some deployments answer 200 with no body; the status code is
			// the acknowledgement.
			tool.DefaultLogger.Debugf("Complete acknowledged with empty body for %s", request.UploadID)
			return &types.CompleteResponse{Success: true, UploadID: request.UploadID}, nil
		}
		var response types.CompleteResponse
		if err := sonic.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("failed to parse complete response: %v", err)
		}
		if !response.Success {
			return nil, fmt.Errorf("completion refused: %s", nonEmpty(response.Message, "server reported success=false"))
		}
		tool.DefaultLogger.Infof("Upload %s completion acknowledged", request.UploadID)
		return &response, nil
	case StatusInvalidRequest:
		return nil, fmt.Errorf("complete request rejected: %s", apiError(body, "invalid request"))
	case StatusUnauthorized:
		return nil, fmt.Errorf("complete request unauthorized: %s", apiError(body, "check auth_token"))
	case http.StatusNotFound:
		return nil, fmt.Errorf("complete request failed: upload %s not found", request.UploadID)
	default:
		if resp.StatusCode >= StatusServerError {
			return nil, fmt.Errorf("intake server error: %s", resp.Status)
		}
		return nil, fmt.Errorf("complete request failed: %s", resp.Status)
	}
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
