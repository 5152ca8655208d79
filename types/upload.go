package types

import "time"

// Wire DTOs for the intake API. Field names are part of the backend
// contract and must not change.

// UploadRequest asks the API for an upload slot (POST /uploads).
type UploadRequest struct {
	Filename string            `json:"filename"`
	Size     int64             `json:"size"`
	MimeType string            `json:"mime_type"`
	FormData map[string]string `json:"form_data,omitempty"`
}

// UploadResponse carries the presigned target for the actual byte transfer.
type UploadResponse struct {
	UploadID        string            `json:"upload_id"`
	PresignedURL    string            `json:"presigned_url"`
	PresignedFields map[string]string `json:"presigned_fields,omitempty"`
	ExpiresAt       time.Time         `json:"expires_at"`
	Status          string            `json:"status,omitempty"`
}

// CompleteRequest tells the API the byte transfer finished
// (POST /uploads/complete).
type CompleteRequest struct {
	UploadID string `json:"upload_id"`
	Success  bool   `json:"success"`
	ETag     string `json:"etag,omitempty"`
}

// CompleteResponse acknowledges a completion notification.
type CompleteResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	UploadID string `json:"upload_id,omitempty"`
}

// StatusResponse is one snapshot of the server-side pipeline
// (GET /uploads/{id}/status). AnalysisResult carries the analysis output on
// completion; before that the server may expose optional hints in it:
// "progress_percent", "estimated_seconds_remaining" and "step".
type StatusResponse struct {
	UploadID       string         `json:"upload_id"`
	Filename       string         `json:"filename"`
	Status         string         `json:"status"`
	AnalysisResult map[string]any `json:"analysis_result,omitempty"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
}

// DeleteResponse acknowledges a cancellation (DELETE /uploads/{id}).
type DeleteResponse struct {
	Success bool `json:"success"`
}
