package notes

import (
	"context"
	"fmt"
	"sync"
)

// Store persists notes in insertion order.
type Store interface {
	Insert(ctx context.Context, n Note) error
	ListByLesson(ctx context.Context, lessonID string) ([]Note, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	notes []Note
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory note store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, n Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	return nil
}

func (s *MemoryStore) ListByLesson(_ context.Context, lessonID string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Note
	for _, n := range s.notes {
		if n.LessonID == lessonID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notes {
		if n.ID == id {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete note %s: %w", id, ErrNoteNotFound)
}
