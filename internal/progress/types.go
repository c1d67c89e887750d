// Package progress tracks per-user lesson completion and derives course
// completion state from it.
package progress

import (
	"errors"
	"time"
)

var (
	// ErrProgressNotFound is returned when no record exists for a course/user pair.
	ErrProgressNotFound = errors.New("progress not found")
	// ErrLessonLocked is returned when sequential unlocking is on and the
	// previous lesson has not been completed.
	ErrLessonLocked = errors.New("lesson locked")
)

// Status is the completion state of a course for one user.
type Status string

const (
	StatusNotStarted Status = "not_started" // no record exists
	StatusStarted    Status = "started"     // record exists, nothing completed
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Record is the stored progress of one user in one course. Completed is a set
// of lesson ids mapped to the time each was first completed.
type Record struct {
	CourseID      string
	UserID        string
	Completed     map[string]time.Time
	CurrentLesson string
	StartedAt     time.Time
	LastWatched   time.Time
}

// Has reports whether lessonID is in the completed set.
func (r Record) Has(lessonID string) bool {
	_, ok := r.Completed[lessonID]
	return ok
}

func (r Record) clone() Record {
	completed := make(map[string]time.Time, len(r.Completed))
	for id, at := range r.Completed {
		completed[id] = at
	}
	r.Completed = completed
	return r
}

// Snapshot is the derived, read-only view of a user's progress in a course.
// The percentage is computed from the completed set on every read.
type Snapshot struct {
	CourseID           string    `json:"course_id"`
	UserID             string    `json:"user_id"`
	Status             Status    `json:"status"`
	CompletedLessons   []string  `json:"completed_lessons"`
	CompletedCount     int       `json:"completed_count"`
	TotalLessons       int       `json:"total_lessons"`
	ProgressPercentage int       `json:"progress_percentage"`
	CurrentLesson      string    `json:"current_lesson,omitempty"`
	StartedAt          time.Time `json:"started_at,omitzero"`
	LastWatched        time.Time `json:"last_watched,omitzero"`
	CertificateEarned  bool      `json:"certificate_earned"`
}

// UnitProgress is the completion of a single unit.
type UnitProgress struct {
	UnitID     string `json:"unit_id"`
	Title      string `json:"title"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

// LessonState is how a lesson appears in the course sidebar.
type LessonState string

const (
	LessonCompleted LessonState = "completed"
	LessonCurrent   LessonState = "current"
	LessonAvailable LessonState = "available"
	LessonLocked    LessonState = "locked"
)

// LessonStatus pairs a lesson with its state.
type LessonStatus struct {
	LessonID string      `json:"lesson_id"`
	UnitID   string      `json:"unit_id"`
	State    LessonState `json:"state"`
}

// Stats aggregates a user's activity across all courses.
type Stats struct {
	CompletedLessons int       `json:"completed_lessons"`
	CoursesStarted   int       `json:"courses_started"`
	CoursesCompleted int       `json:"courses_completed"`
	StreakDays       int       `json:"streak_days"`
	WatchMinutes     int       `json:"watch_minutes"`
	LastActive       time.Time `json:"last_active,omitzero"`
}

// Percentage returns round(100*completed/total), half up, within [0, 100].
// A course without lessons is 0%.
func Percentage(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return (200*completed + total) / (2 * total)
}
