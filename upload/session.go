package upload

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/mkesani1/intake-go/types"
)

// Observer receives a state snapshot after every applied session mutation.
// Deliveries are queued in mutation order and run one at a time, outside the
// session lock, so a consumer never sees interleaved or reordered updates
// even when two goroutines mutate the session at once.
type Observer func(types.UploadState)

type observerEntry struct {
	id int
	fn Observer
}

// delivery is one queued fan-out: the snapshot and the observer set captured
// at mutation time.
type delivery struct {
	state     types.UploadState
	observers []observerEntry
}

// Session is the single mutable record of one upload. Every mutation funnels
// through apply, which holds the lock, enforces the lifecycle guards and
// fans the new snapshot out to observers. Late updates from an attempt that
// no longer owns the session are discarded.
type Session struct {
	mu          sync.Mutex
	state       types.UploadState
	attemptID   string
	abort       context.CancelFunc
	observers   []observerEntry
	nextObsID   int
	pending     []delivery
	dispatching bool
}

// NewSession starts a pending session for the given file.
func NewSession(info types.FileInfo) *Session {
	return &Session{
		state: types.UploadState{
			File:     info,
			Status:   types.StatusPending,
			Progress: types.NewUploadProgress(0, info.Size),
		},
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() types.UploadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state)
}

// Terminal reports whether the session reached completed, failed or
// quarantined.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status.Terminal()
}

// Subscribe registers an observer and returns its unsubscribe func. The
// observer is not called with the current state; read Snapshot first when
// attaching mid-flight.
func (s *Session) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.observers = slices.DeleteFunc(s.observers, func(e observerEntry) bool {
			return e.id == id
		})
		s.mu.Unlock()
	}
}

func cloneState(st types.UploadState) types.UploadState {
	if st.AnalysisResult != nil {
		st.AnalysisResult = maps.Clone(st.AnalysisResult)
	}
	if st.EstimatedSecondsRemaining != nil {
		v := *st.EstimatedSecondsRemaining
		st.EstimatedSecondsRemaining = &v
	}
	return st
}

// apply runs fn on the state when the update is still relevant: the session
// must not be terminal, and a non-empty attemptID must match the attempt
// that currently owns the session. fn reports whether it changed anything;
// only then are observers notified.
func (s *Session) apply(attemptID string, fn func(*types.UploadState) bool) bool {
	s.mu.Lock()
	if s.state.Status.Terminal() {
		s.mu.Unlock()
		return false
	}
	if attemptID != "" && attemptID != s.attemptID {
		s.mu.Unlock()
		return false
	}
	if !fn(&s.state) {
		s.mu.Unlock()
		return false
	}
	s.publishLocked()
	return true
}

// publishLocked queues the current state for observers and drains the queue
// unless another goroutine already is. One drainer at a time, queue in
// mutation order, no lock held during a callback: a slow observer can never
// run concurrently with itself or receive a stale snapshot after a newer
// one. Called with mu held, returns with mu released.
func (s *Session) publishLocked() {
	s.pending = append(s.pending, delivery{
		state:     cloneState(s.state),
		observers: slices.Clone(s.observers),
	})
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.dispatching = false
			s.mu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		for _, entry := range next.observers {
			entry.fn(next.state)
		}
	}
}

// begin binds a new attempt to the session. Exactly one attempt may own a
// session at a time; a terminal session accepts none.
func (s *Session) begin(attemptID string, abort context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status.Terminal() {
		return fmt.Errorf("session is already %s", s.state.Status)
	}
	if s.attemptID != "" {
		return fmt.Errorf("an upload attempt is already running for this session")
	}
	s.attemptID = attemptID
	s.abort = abort
	return nil
}

// release drops attempt ownership once its pipeline goroutine exits.
func (s *Session) release(attemptID string) {
	s.mu.Lock()
	if s.attemptID == attemptID {
		s.attemptID = ""
		s.abort = nil
	}
	s.mu.Unlock()
}

func (s *Session) setStatus(attemptID string, status types.UploadStatus) bool {
	return s.apply(attemptID, func(st *types.UploadState) bool {
		if st.Status == status {
			return false
		}
		st.Status = status
		return true
	})
}

// setProgress folds a byte counter into the session. Progress within an
// attempt is monotonic: anything below the current counter is stale and
// dropped.
func (s *Session) setProgress(attemptID string, loaded int64) bool {
	return s.apply(attemptID, func(st *types.UploadState) bool {
		if loaded < st.Progress.LoadedBytes {
			return false
		}
		next := types.NewUploadProgress(loaded, st.File.Size)
		if next == st.Progress {
			return false
		}
		st.Progress = next
		return true
	})
}

// completeTransfer records the server upload id and enters uploaded in one
// update. The id must never be visible before this transition.
func (s *Session) completeTransfer(attemptID, serverUploadID string) bool {
	return s.apply(attemptID, func(st *types.UploadState) bool {
		st.ServerUploadID = serverUploadID
		st.Status = types.StatusUploaded
		st.Progress = types.NewUploadProgress(st.File.Size, st.File.Size)
		return true
	})
}

// fail marks the session failed with a classification and user-facing
// message. The error code is only ever written together with the failed
// status.
func (s *Session) fail(attemptID string, code types.ValidationError, message string) bool {
	return s.apply(attemptID, func(st *types.UploadState) bool {
		st.Status = types.StatusFailed
		st.Error = code
		st.ErrorMessage = message
		return true
	})
}

// serverUpdate is one folded status-poll result.
type serverUpdate struct {
	status   types.UploadStatus
	step     string
	eta      *int64
	analysis map[string]any
	message  string // human message for failed/quarantined
}

// applyServerUpdate folds a polled snapshot into the session. Transitions
// that would move the status rank backwards are refused, so a late or
// out-of-order poll can never rewind the lifecycle.
func (s *Session) applyServerUpdate(attemptID string, u serverUpdate) bool {
	return s.apply(attemptID, func(st *types.UploadState) bool {
		if u.status.Rank() < st.Status.Rank() {
			return false
		}
		changed := st.Status != u.status
		st.Status = u.status

		if u.step != st.ProcessingStep {
			st.ProcessingStep = u.step
			changed = true
		}
		if !int64PtrEqual(u.eta, st.EstimatedSecondsRemaining) {
			st.EstimatedSecondsRemaining = u.eta
			changed = true
		}

		switch u.status {
		case types.StatusCompleted:
			st.AnalysisResult = maps.Clone(u.analysis)
			st.ProcessingStep = ""
			st.EstimatedSecondsRemaining = nil
			changed = true
		case types.StatusFailed:
			st.Error = types.ValidationUploadError
			st.ErrorMessage = u.message
			st.ProcessingStep = ""
			st.EstimatedSecondsRemaining = nil
			changed = true
		case types.StatusQuarantined:
			st.ErrorMessage = u.message
			st.ProcessingStep = ""
			st.EstimatedSecondsRemaining = nil
			changed = true
		}
		return changed
	})
}

// cancelLocal flips a live session to failed with the given message and
// strips attempt ownership, returning the abort func and server id the
// canceler needs for cleanup. A terminal session is left untouched.
func (s *Session) cancelLocal(message string) (abort context.CancelFunc, serverUploadID string, ok bool) {
	s.mu.Lock()
	if s.state.Status.Terminal() {
		s.mu.Unlock()
		return nil, "", false
	}
	abort = s.abort
	serverUploadID = s.state.ServerUploadID
	s.attemptID = ""
	s.abort = nil
	s.state.Status = types.StatusFailed
	s.state.Error = types.ValidationUploadError
	s.state.ErrorMessage = message
	s.state.ProcessingStep = ""
	s.state.EstimatedSecondsRemaining = nil
	s.publishLocked()
	return abort, serverUploadID, true
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
