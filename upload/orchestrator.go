package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/transfer"
	"github.com/mkesani1/intake-go/types"
)

// UploadErrorMessage is the user-facing message for any transport failure.
// The raw error is logged, never surfaced.
const UploadErrorMessage = "Upload failed. Please try again."

// Source provides the file bytes for one upload. Info seeds the session
// record; Open is called once per attempt.
type Source struct {
	Info types.FileInfo
	Open func() (io.ReadCloser, error)
}

// FileSource builds a Source from a local path, inspecting the file up
// front.
func FileSource(path string) (Source, error) {
	info, err := tool.FileInfoFromPath(path)
	if err != nil {
		return Source{}, err
	}
	return Source{
		Info: *info,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// BytesSource builds a Source from in-memory content.
func BytesSource(name string, data []byte) Source {
	info := tool.FileInfoFromBytes(name, data)
	return Source{
		Info: *info,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Attempt is the handle for one Start call. Done is closed when the pipeline
// exits, whether or not the session reached a terminal state by then.
type Attempt struct {
	id       string
	session  *Session
	cancel   context.CancelFunc
	done     chan struct{}
	progress chan types.UploadProgress
}

// Session returns the session this attempt runs against.
func (a *Attempt) Session() *Session {
	return a.session
}

// Done is closed once the attempt's pipeline goroutine has exited.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Progress delivers byte-counter updates, latest value wins. A slow consumer
// only ever misses intermediate values, never the most recent one.
func (a *Attempt) Progress() <-chan types.UploadProgress {
	return a.progress
}

// Abort cancels the attempt context, interrupting whatever network call is
// in flight. It does not touch the session; use Canceler.Cancel for the full
// cancellation semantics.
func (a *Attempt) Abort() {
	a.cancel()
}

// Wait blocks until the attempt finishes or ctx is done, returning the final
// session snapshot.
func (a *Attempt) Wait(ctx context.Context) (types.UploadState, error) {
	select {
	case <-a.done:
		return a.session.Snapshot(), nil
	case <-ctx.Done():
		return a.session.Snapshot(), ctx.Err()
	}
}

// Orchestrator drives one upload through its lifecycle: validate, request a
// presigned slot, stream the bytes, notify completion, then poll the scan
// pipeline until terminal. Nothing is retried automatically; retrying means
// calling Start again.
type Orchestrator struct {
	endpoint  string
	authToken string
	validator *Validator
	poller    *Poller
	log       *log.Logger
}

// NewOrchestrator builds an orchestrator from the loaded config.
func NewOrchestrator(cfg types.AppConfig) *Orchestrator {
	return &Orchestrator{
		endpoint:  cfg.Endpoint,
		authToken: cfg.AuthToken,
		validator: NewValidator(cfg.Upload),
		poller: NewPoller(cfg.Endpoint, cfg.AuthToken,
			time.Duration(cfg.PollIntervalSeconds)*time.Second, cfg.MaxPolls),
		log: tool.DefaultLogger,
	}
}

// Start begins one upload attempt for the session. It refuses to run when
// the session is terminal or another attempt still owns it; callers disable
// their submit action while an attempt is live.
//
// When validation rejects the file the session fails with the validation
// error before any network call and the returned attempt is already done.
func (o *Orchestrator) Start(ctx context.Context, session *Session, src Source, formData map[string]string) (*Attempt, error) {
	if session == nil {
		return nil, fmt.Errorf("invalid parameters: session must not be nil")
	}
	if src.Open == nil {
		return nil, fmt.Errorf("invalid parameters: source has no content")
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	attempt := &Attempt{
		id:       tool.GenerateRandomUUID(),
		session:  session,
		cancel:   cancel,
		done:     make(chan struct{}),
		progress: make(chan types.UploadProgress, 1),
	}
	if err := session.begin(attempt.id, cancel); err != nil {
		cancel()
		return nil, err
	}

	info := session.Snapshot().File
	if code, message := o.validator.Validate(&info); code != types.ValidationNone {
		o.log.Warnf("Upload of %q refused by validation: %s", info.Name, message)
		session.fail(attempt.id, code, message)
		session.release(attempt.id)
		cancel()
		close(attempt.done)
		return attempt, nil
	}

	go o.run(attemptCtx, attempt, src, formData)
	return attempt, nil
}

// run is the pipeline goroutine: exactly one per accepted Start call.
func (o *Orchestrator) run(ctx context.Context, attempt *Attempt, src Source, formData map[string]string) {
	session := attempt.session
	defer close(attempt.done)
	defer attempt.cancel()
	defer session.release(attempt.id)

	info := session.Snapshot().File
	session.setStatus(attempt.id, types.StatusUploading)

	response, err := transfer.RequestUpload(ctx, o.endpoint, o.authToken, &types.UploadRequest{
		Filename: info.Name,
		Size:     info.Size,
		MimeType: info.MimeType,
		FormData: formData,
	})
	if err != nil {
		o.failAttempt(attempt, "slot request", err)
		return
	}

	etag, err := o.streamFile(ctx, attempt, response, &info, src)
	if err != nil {
		o.failAttempt(attempt, "transfer", err)
		return
	}
	session.completeTransfer(attempt.id, response.UploadID)

	if _, err := transfer.NotifyComplete(ctx, o.endpoint, o.authToken, &types.CompleteRequest{
		UploadID: response.UploadID,
		Success:  true,
		ETag:     etag,
	}); err != nil {
		// The bytes are at rest but the backend never heard about them, so
		// the pipeline will not start. The session fails rather than hang.
		o.failAttempt(attempt, "completion notify", err)
		return
	}

	if err := o.poller.Run(ctx, session, attempt.id, response.UploadID); err != nil {
		o.log.Debugf("Status polling for upload %s ended early: %v", response.UploadID, err)
	}
}

// streamFile opens the source and posts it to the presigned URL, folding
// progress into the session and the attempt's progress channel.
func (o *Orchestrator) streamFile(ctx context.Context, attempt *Attempt, response *types.UploadResponse, info *types.FileInfo, src Source) (string, error) {
	reader, err := src.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open source: %v", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			o.log.Errorf("Failed to close source reader: %v", err)
		}
	}()

	gate := newProgressGate(0)
	onProgress := func(loaded, total int64) {
		p := types.NewUploadProgress(loaded, total)
		if !gate.allow(p) {
			return
		}
		if attempt.session.setProgress(attempt.id, loaded) {
			pushLatest(attempt.progress, p)
		}
	}
	return transfer.PostToPresigned(ctx, response.PresignedURL, response.PresignedFields, info, reader, onProgress)
}

// failAttempt logs the raw error and fails the session with the fixed
// user-safe message. By the time a canceled attempt gets here the session is
// already terminal and the write is discarded.
func (o *Orchestrator) failAttempt(attempt *Attempt, step string, err error) {
	o.log.Errorf("Upload %s failed for %q: %v", step, attempt.session.Snapshot().File.Name, err)
	attempt.session.fail(attempt.id, types.ValidationUploadError, UploadErrorMessage)
}
