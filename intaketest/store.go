package intaketest

import (
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/mkesani1/intake-go/types"
)

// uploadRecord is the sandbox's server-side view of one upload.
type uploadRecord struct {
	ID       string
	Filename string
	Size     int64
	MimeType string
	FormData map[string]string

	Token     string    // must come back as a presigned field on the storage POST
	ObjectKey string    // the "key" presigned field
	ExpiresAt time.Time // presigned window; storage POSTs after this get 403

	Status        types.UploadStatus
	ReceivedBytes int64
	ETag          string

	ProcessingStarted time.Time
	ProcessedAt       *time.Time
	AnalysisResult    map[string]any
}

// store keeps upload records in a TTL cache so an abandoned sandbox does not
// accumulate records forever. The cache horizon is well past the presigned
// window: expired uploads must stay visible to status polls.
type store struct {
	mu      sync.RWMutex
	records *ttlworker.Cache[string, *uploadRecord]
}

func newStore(presignedTTL time.Duration) *store {
	return &store{
		records: ttlworker.NewCache[string, *uploadRecord](presignedTTL + time.Hour),
	}
}

func (s *store) put(rec *uploadRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records.Set(rec.ID, rec)
}

// get returns a copy so handlers never read a record another goroutine is
// mutating.
func (s *store) get(id string) (uploadRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.records.Get(id)
	if rec == nil {
		return uploadRecord{}, false
	}
	return *rec, true
}

func (s *store) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records.Get(id) == nil {
		return false
	}
	s.records.Delete(id)
	return true
}

// update mutates a record under the lock. Returns false when the record is
// gone (deleted or expired).
func (s *store) update(id string, fn func(*uploadRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records.Get(id)
	if rec == nil {
		return false
	}
	fn(rec)
	s.records.Set(id, rec)
	return true
}

// advance moves a record from the expected status to next, refusing any
// other transition so a deleted or failed upload stays put. Used by the
// pipeline walker between its delays.
func (s *store) advance(id string, expected, next types.UploadStatus, fn func(*uploadRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records.Get(id)
	if rec == nil || rec.Status != expected {
		return false
	}
	rec.Status = next
	if fn != nil {
		fn(rec)
	}
	s.records.Set(id, rec)
	return true
}
