package types

import (
	"math"
	"strings"
)

// UploadStatus is the lifecycle of one sample upload, client states first
// (pending/uploading), then the server-reported pipeline states.
type UploadStatus string

const (
	StatusPending     UploadStatus = "pending"
	StatusUploading   UploadStatus = "uploading"
	StatusUploaded    UploadStatus = "uploaded"
	StatusScanning    UploadStatus = "scanning"
	StatusProcessing  UploadStatus = "processing"
	StatusCompleted   UploadStatus = "completed"
	StatusFailed      UploadStatus = "failed"
	StatusQuarantined UploadStatus = "quarantined"
)

var statusRanks = map[UploadStatus]int{
	StatusPending:     0,
	StatusUploading:   1,
	StatusUploaded:    2,
	StatusScanning:    3,
	StatusProcessing:  4,
	StatusCompleted:   5,
	StatusFailed:      6,
	StatusQuarantined: 6,
}

// UploadStatusFrom parses a server-reported status string. It is
// case-insensitive and returns false for anything outside the enum so
// callers can keep their current status.
func UploadStatusFrom(s string) (UploadStatus, bool) {
	st := UploadStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := statusRanks[st]; ok {
		return st, true
	}
	return "", false
}

// Terminal reports whether the status ends the lifecycle.
func (s UploadStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusQuarantined:
		return true
	}
	return false
}

// Rank orders statuses along the pipeline. Polling never applies a status
// whose rank is lower than the current one.
func (s UploadStatus) Rank() int {
	return statusRanks[s]
}

// ValidationError classifies why a file was rejected before or during
// upload. The zero value means no error.
type ValidationError string

const (
	ValidationNone         ValidationError = ""
	ValidationEmptyFile    ValidationError = "empty_file"
	ValidationFileTooLarge ValidationError = "file_too_large"
	ValidationInvalidType  ValidationError = "invalid_type"
	ValidationUploadError  ValidationError = "upload_error"
)

// UploadProgress is a point-in-time byte counter for the transfer phase.
type UploadProgress struct {
	LoadedBytes int64 `json:"loaded_bytes"`
	TotalBytes  int64 `json:"total_bytes"`
	Percentage  int   `json:"percentage"`
}

// NewUploadProgress derives the integer percentage from the byte counters:
// round(loaded/total*100), clamped to [0,100]. A zero or unknown total
// yields 0 rather than a division error.
func NewUploadProgress(loaded, total int64) UploadProgress {
	p := UploadProgress{LoadedBytes: loaded, TotalBytes: total}
	if total <= 0 {
		return p
	}
	pct := int(math.Round(float64(loaded) / float64(total) * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	p.Percentage = pct
	return p
}

// UploadState is the snapshot of one upload session handed to observers.
type UploadState struct {
	File                      FileInfo        `json:"file"`
	Status                    UploadStatus    `json:"status"`
	Progress                  UploadProgress  `json:"progress"`
	ServerUploadID            string          `json:"server_upload_id,omitempty"`
	Error                     ValidationError `json:"error,omitempty"`
	ErrorMessage              string          `json:"error_message,omitempty"`
	ProcessingStep            string          `json:"processing_step,omitempty"`
	EstimatedSecondsRemaining *int64          `json:"estimated_seconds_remaining,omitempty"`
	AnalysisResult            map[string]any  `json:"analysis_result,omitempty"`
}
