// Package notes stores timestamped lesson notes and aggregates them for the
// lesson timeline.
package notes

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ErrNoteNotFound is returned when a note id does not exist.
var ErrNoteNotFound = errors.New("note not found")

// Note is a free-text annotation anchored to a second of a lesson's video.
type Note struct {
	ID        string    `json:"id"`
	LessonID  string    `json:"lesson_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp int       `json:"timestamp"` // seconds into the video
	CreatedAt time.Time `json:"created_at"`
}

// Bucket groups the notes that fall into one minute of video.
type Bucket struct {
	Minute int    `json:"minute"`
	Label  string `json:"label"`
	Notes  []Note `json:"notes"`
}

// Service appends and queries notes.
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewService creates a note service backed by store, or by a MemoryStore
// when store is nil.
func NewService(store Store) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Add appends a note. The id and creation time are assigned here; content
// and timestamp are stored as given.
func (s *Service) Add(ctx context.Context, n Note) (Note, error) {
	n.ID = s.newID()
	n.CreatedAt = s.now()
	if err := s.store.Insert(ctx, n); err != nil {
		return Note{}, fmt.Errorf("add note: %w", err)
	}
	slog.Debug("note added", "note_id", n.ID, "lesson_id", n.LessonID, "user_id", n.UserID)
	return n, nil
}

// ForLesson returns the notes of a lesson ordered by timestamp. Notes with
// equal timestamps keep insertion order.
func (s *Service) ForLesson(ctx context.Context, lessonID string) ([]Note, error) {
	notes, err := s.store.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	slices.SortStableFunc(notes, func(a, b Note) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return notes, nil
}

// ForUserLesson is ForLesson restricted to one author.
func (s *Service) ForUserLesson(ctx context.Context, userID, lessonID string) ([]Note, error) {
	notes, err := s.ForLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(notes, func(n Note) bool { return n.UserID != userID }), nil
}

// Delete removes a note by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Buckets groups time-ordered notes by whole minute. Empty minutes are
// omitted.
func Buckets(notes []Note) []Bucket {
	var buckets []Bucket
	for _, n := range notes {
		minute := floorDiv(n.Timestamp, 60)
		if len(buckets) == 0 || buckets[len(buckets)-1].Minute != minute {
			buckets = append(buckets, Bucket{
				Minute: minute,
				Label:  FormatTimestamp(minute * 60),
			})
		}
		last := &buckets[len(buckets)-1]
		last.Notes = append(last.Notes, n)
	}
	return buckets
}

// FormatTimestamp renders seconds as m:ss. Negative values keep their sign.
func FormatTimestamp(seconds int) string {
	sign := ""
	abs := uint64(seconds)
	if seconds < 0 {
		sign = "-"
		abs = uint64(-(seconds + 1)) + 1
	}
	return fmt.Sprintf("%s%d:%02d", sign, abs/60, abs%60)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}
