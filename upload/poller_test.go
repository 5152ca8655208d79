package upload

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkesani1/intake-go/types"
)

// statusScript serves a fixed sequence of status responses; the last step
// repeats for any further polls.
type statusScript struct {
	mu    sync.Mutex
	steps []scriptStep
	calls int
}

type scriptStep struct {
	code int
	body string
}

func statusBody(status, analysis string) string {
	if analysis == "" {
		return fmt.Sprintf(`{"upload_id":"u-1","filename":"report.csv","status":"%s"}`, status)
	}
	return fmt.Sprintf(`{"upload_id":"u-1","filename":"report.csv","status":"%s","analysis_result":%s}`, status, analysis)
}

func (s *statusScript) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		i := s.calls
		if i >= len(s.steps) {
			i = len(s.steps) - 1
		}
		s.calls++
		step := s.steps[i]
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(step.code)
		_, _ = w.Write([]byte(step.body))
	}
}

func (s *statusScript) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// uploadedSession returns a session that already finished its transfer, the
// state the poller takes over from.
func uploadedSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(testInfo())
	require.NoError(t, s.begin("a1", func() {}))
	require.True(t, s.completeTransfer("a1", "u-1"))
	return s
}

func TestPollerWalksPipelineToCompleted(t *testing.T) {
	script := &statusScript{steps: []scriptStep{
		{http.StatusOK, statusBody("uploaded", "")},
		{http.StatusOK, statusBody("scanning", "")},
		{http.StatusOK, statusBody("processing", `{"step":"analysis"}`)},
		{http.StatusOK, statusBody("completed", `{"verdict":"clean"}`)},
	}}
	ts := httptest.NewServer(script.handler())
	defer ts.Close()

	session := uploadedSession(t)
	p := NewPoller(ts.URL, "", 10*time.Millisecond, 0)
	require.NoError(t, p.Run(context.Background(), session, "a1", "u-1"))

	st := session.Snapshot()
	assert.Equal(t, types.StatusCompleted, st.Status)
	assert.Equal(t, "clean", st.AnalysisResult["verdict"])
	assert.Equal(t, 4, script.count())

	// terminal means the timer is gone: no further status calls
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, script.count())
}

func TestPollerSwallowsTransientErrors(t *testing.T) {
	script := &statusScript{steps: []scriptStep{
		{http.StatusInternalServerError, `{"error":"boom"}`},
		{http.StatusOK, statusBody("scanning", "")},
		{http.StatusNotFound, `{"error":"hiccup"}`},
		{http.StatusOK, statusBody("completed", "{}")},
	}}
	ts := httptest.NewServer(script.handler())
	defer ts.Close()

	session := uploadedSession(t)
	p := NewPoller(ts.URL, "", 10*time.Millisecond, 0)
	require.NoError(t, p.Run(context.Background(), session, "a1", "u-1"))

	assert.Equal(t, types.StatusCompleted, session.Snapshot().Status)
	assert.Equal(t, 4, script.count(), "each failed poll is retried on the next tick")
}

func TestPollerKeepsStatusOnUnknownString(t *testing.T) {
	script := &statusScript{steps: []scriptStep{
		{http.StatusOK, statusBody("defrobulating", "")},
		{http.StatusOK, statusBody("completed", "{}")},
	}}
	ts := httptest.NewServer(script.handler())
	defer ts.Close()

	session := uploadedSession(t)
	p := NewPoller(ts.URL, "", 10*time.Millisecond, 0)
	require.NoError(t, p.Run(context.Background(), session, "a1", "u-1"))
	assert.Equal(t, types.StatusCompleted, session.Snapshot().Status)
}

func TestPollerNeverMovesBackwards(t *testing.T) {
	script := &statusScript{steps: []scriptStep{
		{http.StatusOK, statusBody("processing", "")},
		{http.StatusOK, statusBody("scanning", "")}, // out-of-order report
		{http.StatusOK, statusBody("completed", "{}")},
	}}
	ts := httptest.NewServer(script.handler())
	defer ts.Close()

	session := uploadedSession(t)
	var sawScanning bool
	session.Subscribe(func(st types.UploadState) {
		if st.Status == types.StatusScanning {
			sawScanning = true
		}
	})

	p := NewPoller(ts.URL, "", 10*time.Millisecond, 0)
	require.NoError(t, p.Run(context.Background(), session, "a1", "u-1"))
	assert.False(t, sawScanning, "observers must never see a backwards transition")
	assert.Equal(t, types.StatusCompleted, session.Snapshot().Status)
}

func TestPollerQuarantineOutcome(t *testing.T) {
	script := &statusScript{steps: []scriptStep{
		{http.StatusOK, statusBody("scanning", "")},
		{http.StatusOK, statusBody("quarantined", `{"reason":"Malware scan flagged the file"}`)},
	}}
	ts := httptest.NewServer(script.handler())
	defer ts.Close()

	session := uploadedSession(t)
	p := NewPoller(ts.URL, "", 10*time.Millisecond, 0)
	require.NoError(t, p.Run(context.Background(), session, "a1", "u-1"))

	st := session.Snapshot()
	assert.Equal(t, types.StatusQuarantined, st.Status)
	assert.Equal(t, "Malware scan flagged the file", st.ErrorMessage)
	assert.Equal(t, types.ValidationNone, st.Error, "quarantine is an outcome, not an upload error")
}

func TestPollerDefaultETAWhileProcessing(t *testing.T) {
	script := &statusScript{steps: []scriptStep{
		{http.StatusOK, statusBody("processing", "")},
		{http.StatusOK, statusBody("completed", "{}")},
	}}
	ts := httptest.NewServer(script.handler())
	defer ts.Close()

	session := uploadedSession(t)
	var eta *int64
	session.Subscribe(func(st types.UploadState) {
		if st.Status == types.StatusProcessing && st.EstimatedSecondsRemaining != nil {
			v := *st.EstimatedSecondsRemaining
			eta = &v
		}
	})

	p := NewPoller(ts.URL, "", 10*time.Millisecond, 0)
	require.NoError(t, p.Run(context.Background(), session, "a1", "u-1"))
	require.NotNil(t, eta, "processing without hints still carries an estimate")
	assert.Equal(t, DefaultETASeconds, *eta)
}

func TestPollerNoUploadIDIsNoop(t *testing.T) {
	p := NewPoller("http://127.0.0.1:1", "", time.Millisecond, 0)
	session := uploadedSession(t)
	assert.NoError(t, p.Run(context.Background(), session, "a1", ""))
	assert.Equal(t, types.StatusUploaded, session.Snapshot().Status)
}

func TestPollerMaxPollsBudget(t *testing.T) {
	script := &statusScript{steps: []scriptStep{
		{http.StatusOK, statusBody("scanning", "")},
	}}
	ts := httptest.NewServer(script.handler())
	defer ts.Close()

	session := uploadedSession(t)
	p := NewPoller(ts.URL, "", 10*time.Millisecond, 2)
	require.NoError(t, p.Run(context.Background(), session, "a1", "u-1"))

	assert.Equal(t, 2, script.count())
	assert.Equal(t, types.StatusScanning, session.Snapshot().Status,
		"an exhausted budget leaves the last observed status in place")
}

func TestPollerContextCancel(t *testing.T) {
	script := &statusScript{steps: []scriptStep{
		{http.StatusOK, statusBody("scanning", "")},
	}}
	ts := httptest.NewServer(script.handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	session := uploadedSession(t)
	p := NewPoller(ts.URL, "", 10*time.Millisecond, 0)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, session, "a1", "u-1") }()
	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on context cancel")
	}
}

func TestEstimateETA(t *testing.T) {
	t.Run("server estimate wins", func(t *testing.T) {
		got := estimateETA(map[string]any{
			"estimated_seconds_remaining": float64(42),
			"progress_percent":            float64(10),
		}, 30*time.Second)
		assert.Equal(t, int64(42), got)
	})

	t.Run("extrapolates from progress", func(t *testing.T) {
		// 25% done after 30s: 120s total, 90s to go
		got := estimateETA(map[string]any{"progress_percent": float64(25)}, 30*time.Second)
		assert.Equal(t, int64(90), got)
	})

	t.Run("remaining never negative", func(t *testing.T) {
		got := estimateETA(map[string]any{"progress_percent": float64(100)}, 30*time.Second)
		assert.Equal(t, int64(0), got)
	})

	t.Run("no signal falls back to placeholder", func(t *testing.T) {
		assert.Equal(t, DefaultETASeconds, estimateETA(nil, 10*time.Second))
		assert.Equal(t, DefaultETASeconds, estimateETA(map[string]any{}, 10*time.Second))
		assert.Equal(t, DefaultETASeconds, estimateETA(map[string]any{"progress_percent": float64(0)}, 10*time.Second))
		assert.Equal(t, DefaultETASeconds, estimateETA(map[string]any{"progress_percent": float64(150)}, 10*time.Second))
	})
}
