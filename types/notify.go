package types

import "time"

// Event names carried by UploadEvent.
const (
	EventUploadState = "upload_state"
	EventHello       = "hello"
)

// UploadEvent is the envelope broadcast to notify listeners whenever a
// session changes.
type UploadEvent struct {
	Event string       `json:"event"`
	At    time.Time    `json:"at"`
	State *UploadState `json:"state,omitempty"`
}
