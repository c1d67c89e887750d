package navigation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/course"
)

// ErrSessionClosed is returned when navigating a closed session.
var ErrSessionClosed = errors.New("session closed")

// AdvanceFunc receives the lesson a scheduled auto-advance moved to.
type AdvanceFunc func(next course.Lesson)

// Session is one viewer's position in a course. It owns at most one pending
// auto-advance; any navigation cancels it.
type Session struct {
	userID   string
	course   course.Course
	current  string
	position int // seconds into the current lesson's video
	timer    *time.Timer
	gen      uint64
	closed   bool
	mu       sync.Mutex
}

// NewSession starts a session at lessonID. An empty lessonID starts at the
// first lesson of the course.
func NewSession(userID string, c course.Course, lessonID string) (*Session, error) {
	if lessonID == "" {
		lessons := Flatten(c)
		if len(lessons) == 0 {
			return nil, fmt.Errorf("course %s has no lessons: %w", c.ID, course.ErrLessonNotFound)
		}
		lessonID = lessons[0].ID
	}
	if !c.HasLesson(lessonID) {
		return nil, fmt.Errorf("lesson %s in course %s: %w", lessonID, c.ID, course.ErrLessonNotFound)
	}
	return &Session{
		userID:  userID,
		course:  c,
		current: lessonID,
	}, nil
}

// UserID returns the viewer the session belongs to.
func (s *Session) UserID() string {
	return s.userID
}

// Course returns the course being viewed.
func (s *Session) Course() course.Course {
	return s.course
}

// Current returns the lesson being viewed.
func (s *Session) Current() course.Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, _, _ := s.course.FindLesson(s.current)
	return l
}

// Position returns the last reported playback position in seconds.
func (s *Session) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// SetPosition records the playback position. It does not touch progress.
func (s *Session) SetPosition(seconds int) {
	s.mu.Lock()
	s.position = seconds
	s.mu.Unlock()
}

// Select jumps to lessonID, cancelling any pending auto-advance.
func (s *Session) Select(lessonID string) (course.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return course.Lesson{}, ErrSessionClosed
	}
	l, _, ok := s.course.FindLesson(lessonID)
	if !ok {
		return course.Lesson{}, fmt.Errorf("lesson %s in course %s: %w", lessonID, s.course.ID, course.ErrLessonNotFound)
	}
	s.cancelLocked()
	s.moveLocked(l.ID)
	return l, nil
}

// Next moves to the following lesson. It reports false at the last lesson.
func (s *Session) Next() (course.Lesson, bool) {
	return s.step(Next)
}

// Previous moves to the preceding lesson. It reports false at the first lesson.
func (s *Session) Previous() (course.Lesson, bool) {
	return s.step(Previous)
}

func (s *Session) step(move func(course.Course, string) (course.Lesson, bool)) (course.Lesson, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return course.Lesson{}, false
	}
	s.cancelLocked()
	l, ok := move(s.course, s.current)
	if !ok {
		return course.Lesson{}, false
	}
	s.moveLocked(l.ID)
	return l, true
}

// ScheduleAdvance moves to the next lesson after delay. It replaces any
// advance already pending. Nothing happens if the viewer navigates or the
// session closes before the timer fires, or if the current lesson is the
// last one.
//
// commit runs while the session is still locked, so a concurrent Select
// waits for it; it must not call back into the session. after runs once
// the lock is released. Either may be nil.
func (s *Session) ScheduleAdvance(delay time.Duration, commit, after AdvanceFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.cancelLocked()
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() { s.fire(gen, commit, after) })
}

// CancelAdvance drops a pending auto-advance and reports whether one existed.
func (s *Session) CancelAdvance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.timer != nil
	s.cancelLocked()
	return pending
}

// AdvancePending reports whether an auto-advance is scheduled.
func (s *Session) AdvancePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Close cancels pending work. Further navigation is refused.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.closed = true
}

func (s *Session) fire(gen uint64, commit, after AdvanceFunc) {
	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	next, ok := Next(s.course, s.current)
	if ok {
		s.moveLocked(next.ID)
		if commit != nil {
			commit(next)
		}
	}
	s.mu.Unlock()

	if ok && after != nil {
		after(next)
	}
}

func (s *Session) cancelLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) moveLocked(lessonID string) {
	s.current = lessonID
	s.position = 0
}
