package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkesani1/intake-go/types"
)

// deleteRecorder captures DELETE calls and answers them with the given status
// code.
type deleteRecorder struct {
	mu    sync.Mutex
	code  int
	paths []string
}

func (d *deleteRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		d.mu.Lock()
		d.paths = append(d.paths, r.URL.Path)
		d.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(d.code)
		_, _ = w.Write([]byte(`{"success":true}`))
	}
}

func (d *deleteRecorder) seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.paths...)
}

func TestCancelBeforeAnyAttempt(t *testing.T) {
	rec := &deleteRecorder{code: http.StatusOK}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	session := NewSession(testInfo())
	c := NewCanceler(ts.URL, "")
	assert.True(t, c.Cancel(context.Background(), session))

	st := session.Snapshot()
	assert.Equal(t, types.StatusFailed, st.Status)
	assert.Equal(t, types.ValidationUploadError, st.Error)
	assert.Equal(t, CancelMessage, st.ErrorMessage)
	assert.Empty(t, rec.seen(), "no server id means no delete call")
}

func TestCancelAbortsAndDeletes(t *testing.T) {
	rec := &deleteRecorder{code: http.StatusOK}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	var aborted atomic.Bool
	session := NewSession(testInfo())
	require.NoError(t, session.begin("a1", func() { aborted.Store(true) }))
	require.True(t, session.completeTransfer("a1", "u-123"))

	c := NewCanceler(ts.URL, "")
	assert.True(t, c.Cancel(context.Background(), session))

	assert.True(t, aborted.Load(), "the attempt context must be aborted")
	assert.Equal(t, []string{"/uploads/u-123"}, rec.seen())
	st := session.Snapshot()
	assert.Equal(t, types.StatusFailed, st.Status)
	assert.Equal(t, CancelMessage, st.ErrorMessage)
}

func TestCancelIsIdempotent(t *testing.T) {
	rec := &deleteRecorder{code: http.StatusOK}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	session := NewSession(testInfo())
	require.NoError(t, session.begin("a1", func() {}))
	require.True(t, session.completeTransfer("a1", "u-9"))

	c := NewCanceler(ts.URL, "")
	assert.True(t, c.Cancel(context.Background(), session))
	assert.False(t, c.Cancel(context.Background(), session))
	assert.Len(t, rec.seen(), 1, "only the effective cancel talks to the server")
}

func TestCancelSurvivesDeleteFailure(t *testing.T) {
	rec := &deleteRecorder{code: http.StatusInternalServerError}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	session := NewSession(testInfo())
	require.NoError(t, session.begin("a1", func() {}))
	require.True(t, session.completeTransfer("a1", "u-5"))

	c := NewCanceler(ts.URL, "")
	assert.True(t, c.Cancel(context.Background(), session),
		"server cleanup is best effort and never blocks the local cancel")
	assert.Equal(t, types.StatusFailed, session.Snapshot().Status)
	assert.Len(t, rec.seen(), 1)
}

func TestCancelTerminalSessionIsNoop(t *testing.T) {
	rec := &deleteRecorder{code: http.StatusOK}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	session := NewSession(testInfo())
	require.NoError(t, session.begin("a1", func() {}))
	require.True(t, session.completeTransfer("a1", "u-1"))
	require.True(t, session.applyServerUpdate("a1", serverUpdate{status: types.StatusCompleted}))

	c := NewCanceler(ts.URL, "")
	assert.False(t, c.Cancel(context.Background(), session))

	st := session.Snapshot()
	assert.Equal(t, types.StatusCompleted, st.Status, "a finished upload stays finished")
	assert.Empty(t, st.ErrorMessage)
	assert.Empty(t, rec.seen())
}

func TestCancelNilSession(t *testing.T) {
	c := NewCanceler("http://127.0.0.1:1", "")
	assert.False(t, c.Cancel(context.Background(), nil))
}
