package upload

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/transfer"
)

// CancelMessage is the user-facing error message of a canceled upload.
const CancelMessage = "Upload canceled"

// deleteTimeout bounds the best-effort server cleanup after a cancel.
const deleteTimeout = 5 * time.Second

// Canceler stops a running upload: it fails the session locally, aborts the
// in-flight transfer and asks the server to delete whatever already arrived.
// Server cleanup is best effort; its outcome never changes the local state.
type Canceler struct {
	endpoint  string
	authToken string
	log       *log.Logger
}

func NewCanceler(endpoint, authToken string) *Canceler {
	return &Canceler{
		endpoint:  endpoint,
		authToken: authToken,
		log:       tool.DefaultLogger,
	}
}

// Cancel cancels the session's upload. It reports true when this call did
// the cancellation and false when there was nothing to cancel because the
// session already reached a terminal status. Canceling twice is a no-op.
func (c *Canceler) Cancel(ctx context.Context, session *Session) bool {
	if session == nil {
		return false
	}

	abort, serverUploadID, ok := session.cancelLocal(CancelMessage)
	if !ok {
		return false
	}
	if abort != nil {
		abort()
	}

	if serverUploadID != "" {
		// The attempt context is usually already dead here, so the DELETE
		// rides a detached context with its own deadline.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
		defer cancel()
		resp, err := transfer.DeleteUpload(cleanupCtx, c.endpoint, c.authToken, serverUploadID)
		switch {
		case err != nil:
			c.log.Debugf("Server delete for upload %s failed: %v", serverUploadID, err)
		case !resp.Success:
			c.log.Debugf("Server had no upload %s to delete", serverUploadID)
		}
	}

	c.log.Infof("Upload of %s canceled", session.Snapshot().File.Name)
	return true
}
