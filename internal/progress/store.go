package progress

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists progress records. Implementations must keep the completed
// set duplicate-free.
type Store interface {
	// Get returns the record for a course/user pair. found is false when no
	// record exists.
	Get(ctx context.Context, courseID, userID string) (rec Record, found bool, err error)
	// Complete adds lessonID to the completed set, creating the record if
	// needed, and moves the current lesson and last-watched time. added is
	// false when the lesson was already complete.
	Complete(ctx context.Context, courseID, userID, lessonID string, at time.Time) (added bool, err error)
	// Touch sets the current lesson, creating an empty record if needed.
	Touch(ctx context.Context, courseID, userID, lessonID string, at time.Time) error
	// ListByUser returns every record of a user.
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	// Delete removes a record. It returns ErrProgressNotFound if none exists.
	Delete(ctx context.Context, courseID, userID string) error
}

type recordKey struct {
	courseID string
	userID   string
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	records map[recordKey]*Record
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]*Record),
	}
}

func (s *MemoryStore) Get(_ context.Context, courseID, userID string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey{courseID, userID}]
	if !ok {
		return Record{}, false, nil
	}
	return rec.clone(), true, nil
}

func (s *MemoryStore) Complete(_ context.Context, courseID, userID, lessonID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreate(courseID, userID, at)
	rec.CurrentLesson = lessonID
	rec.LastWatched = at
	if rec.Has(lessonID) {
		return false, nil
	}
	rec.Completed[lessonID] = at
	return true, nil
}

func (s *MemoryStore) Touch(_ context.Context, courseID, userID, lessonID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreate(courseID, userID, at)
	rec.CurrentLesson = lessonID
	rec.LastWatched = at
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for k, rec := range s.records {
		if k.userID == userID {
			out = append(out, rec.clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, courseID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey{courseID, userID}
	if _, ok := s.records[k]; !ok {
		return fmt.Errorf("delete progress %s/%s: %w", courseID, userID, ErrProgressNotFound)
	}
	delete(s.records, k)
	return nil
}

// getOrCreate must be called with the write lock held.
func (s *MemoryStore) getOrCreate(courseID, userID string, at time.Time) *Record {
	k := recordKey{courseID, userID}
	rec, ok := s.records[k]
	if !ok {
		rec = &Record{
			CourseID:  courseID,
			UserID:    userID,
			Completed: make(map[string]time.Time),
			StartedAt: at,
		}
		s.records[k] = rec
	}
	return rec
}
