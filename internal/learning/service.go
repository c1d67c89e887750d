// Package learning drives the lesson player: it turns playback events into
// progress updates, schedules auto-advance and assembles the course
// dashboard.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/achievement"
	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/events"
	"github.com/p-n-ai/pai-classroom/internal/navigation"
	"github.com/p-n-ai/pai-classroom/internal/notes"
	"github.com/p-n-ai/pai-classroom/internal/notify"
	"github.com/p-n-ai/pai-classroom/internal/platform/metrics"
	"github.com/p-n-ai/pai-classroom/internal/progress"
)

const (
	defaultAutoAdvanceDelay = 3 * time.Second
	backgroundTimeout       = 5 * time.Second
)

// ErrNoSession is returned when a user has no open lesson.
var ErrNoSession = errors.New("no active session")

// Catalog resolves courses by id.
type Catalog interface {
	GetCourse(id string) (course.Course, bool)
}

// Notifier pushes messages to connected clients.
type Notifier interface {
	Broadcast(ctx context.Context, msg notify.Message) error
}

// Config holds dependencies for the learning service.
type Config struct {
	Catalog          Catalog
	Progress         *progress.Engine
	Notes            *notes.Service
	Events           events.Logger    // default Nop
	Notifier         Notifier         // optional
	Metrics          *metrics.Metrics // default fresh registry
	AutoAdvanceDelay time.Duration    // default 3s
}

// Service is the lesson player backend. Each user has at most one open
// session.
type Service struct {
	catalog  Catalog
	progress *progress.Engine
	notes    *notes.Service
	events   events.Logger
	notifier Notifier
	metrics  *metrics.Metrics
	delay    time.Duration

	sessions map[string]*navigation.Session
	mu       sync.Mutex
}

// NewService creates a learning service.
func NewService(cfg Config) *Service {
	ev := cfg.Events
	if ev == nil {
		ev = events.Nop{}
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	delay := cfg.AutoAdvanceDelay
	if delay == 0 {
		delay = defaultAutoAdvanceDelay
	}
	n := cfg.Notes
	if n == nil {
		n = notes.NewService(nil)
	}
	p := cfg.Progress
	if p == nil {
		p = progress.NewEngine(progress.EngineConfig{Courses: cfg.Catalog})
	}
	return &Service{
		catalog:  cfg.Catalog,
		progress: p,
		notes:    n,
		events:   ev,
		notifier: cfg.Notifier,
		metrics:  m,
		delay:    delay,
		sessions: make(map[string]*navigation.Session),
	}
}

// LessonView describes the lesson a session is on.
type LessonView struct {
	CourseID string              `json:"course_id"`
	Lesson   course.Lesson       `json:"lesson"`
	Position navigation.Position `json:"position"`
	HasNext  bool                `json:"has_next"`
	HasPrev  bool                `json:"has_previous"`
	Progress progress.Snapshot   `json:"progress"`
}

// CompletionResult is the outcome of a finished video.
type CompletionResult struct {
	Progress         progress.Snapshot `json:"progress"`
	Changed          bool              `json:"changed"`
	CourseCompleted  bool              `json:"course_completed"`
	AdvanceScheduled bool              `json:"advance_scheduled"`
	NextLesson       *course.Lesson    `json:"next_lesson,omitempty"`
}

// OpenLesson starts a session for userID on lessonID, replacing any session
// the user had. An empty lessonID resumes at the stored current lesson, or
// the first lesson of the course.
func (s *Service) OpenLesson(ctx context.Context, userID, courseID, lessonID string) (LessonView, error) {
	c, ok := s.catalog.GetCourse(courseID)
	if !ok {
		return LessonView{}, fmt.Errorf("open course %s: %w", courseID, course.ErrCourseNotFound)
	}
	if lessonID == "" {
		snap, _, err := s.progress.CourseProgress(ctx, courseID, userID)
		if err != nil {
			return LessonView{}, err
		}
		if c.HasLesson(snap.CurrentLesson) {
			lessonID = snap.CurrentLesson
		}
	}

	sess, err := navigation.NewSession(userID, c, lessonID)
	if err != nil {
		return LessonView{}, err
	}
	current := sess.Current()
	if _, err := s.progress.SetCurrentLesson(ctx, courseID, current.ID, userID); err != nil {
		return LessonView{}, err
	}

	s.mu.Lock()
	if old, ok := s.sessions[userID]; ok {
		old.Close()
	}
	s.sessions[userID] = sess
	s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	s.logEvent(ctx, events.Event{
		UserID:   userID,
		CourseID: courseID,
		LessonID: current.ID,
		Type:     events.TypeLessonOpened,
	})
	slog.Info("lesson opened", "user_id", userID, "course_id", courseID, "lesson_id", current.ID)

	return s.view(ctx, sess)
}

// Current returns the lesson the user's session is on.
func (s *Service) Current(ctx context.Context, userID string) (LessonView, error) {
	sess, err := s.session(userID)
	if err != nil {
		return LessonView{}, err
	}
	return s.view(ctx, sess)
}

// VideoProgress records the playback position from a player tick. current
// is clamped to total when the player reports a known duration. Ticks never
// change the completed set.
func (s *Service) VideoProgress(userID string, current, total int) error {
	sess, err := s.session(userID)
	if err != nil {
		return err
	}
	if total > 0 && current > total {
		current = total
	}
	sess.SetPosition(max(current, 0))
	return nil
}

// VideoComplete marks the session's current lesson complete. When the course
// is not finished yet the session advances to the next lesson after the
// auto-advance delay, unless the viewer navigates first.
func (s *Service) VideoComplete(ctx context.Context, userID string) (CompletionResult, error) {
	sess, err := s.session(userID)
	if err != nil {
		return CompletionResult{}, err
	}
	c := sess.Course()
	lesson := sess.Current()

	snap, changed, err := s.progress.MarkComplete(ctx, c.ID, lesson.ID, userID)
	if err != nil {
		return CompletionResult{}, err
	}
	res := s.completed(ctx, userID, c.ID, lesson.ID, snap, changed)
	if res.CourseCompleted {
		return res, nil
	}

	if next, ok := navigation.Next(c, lesson.ID); ok {
		sess.ScheduleAdvance(s.delay,
			func(next course.Lesson) { s.persistAdvance(userID, c.ID, next) },
			func(next course.Lesson) { s.advanced(userID, c.ID, next) },
		)
		res.AdvanceScheduled = true
		res.NextLesson = &next
	}
	return res, nil
}

// MarkComplete marks lessonID complete outside of a player session. It
// records the same events and notifications as VideoComplete but never
// schedules an auto-advance.
func (s *Service) MarkComplete(ctx context.Context, userID, courseID, lessonID string) (CompletionResult, error) {
	snap, changed, err := s.progress.MarkComplete(ctx, courseID, lessonID, userID)
	if err != nil {
		return CompletionResult{}, err
	}
	return s.completed(ctx, userID, courseID, lessonID, snap, changed), nil
}

// StayOnLesson cancels a pending auto-advance so the viewer remains on the
// current lesson. It reports whether an advance was pending.
func (s *Service) StayOnLesson(userID string) (bool, error) {
	sess, err := s.session(userID)
	if err != nil {
		return false, err
	}
	return sess.CancelAdvance(), nil
}

// completed emits the metrics, events and notifications for a lesson
// completion, plus the course completion when it finished the course.
func (s *Service) completed(ctx context.Context, userID, courseID, lessonID string, snap progress.Snapshot, changed bool) CompletionResult {
	res := CompletionResult{Progress: snap, Changed: changed}

	if changed {
		s.metrics.LessonsCompleted.Inc()
		s.logEvent(ctx, events.Event{
			UserID:   userID,
			CourseID: courseID,
			LessonID: lessonID,
			Type:     events.TypeLessonCompleted,
			Data:     map[string]any{"percentage": snap.ProgressPercentage},
		})
	}
	s.push(ctx, notify.Message{
		UserID: userID,
		Type:   notify.TypeLessonCompleted,
		Data:   snap,
	})

	if snap.Status != progress.StatusCompleted {
		return res
	}
	res.CourseCompleted = true
	if changed {
		s.metrics.CoursesCompleted.Inc()
		s.logEvent(ctx, events.Event{
			UserID:   userID,
			CourseID: courseID,
			Type:     events.TypeCourseCompleted,
			Data:     map[string]any{"lessons": snap.TotalLessons},
		})
		s.push(ctx, notify.Message{
			UserID: userID,
			Type:   notify.TypeCourseCompleted,
			Data:   snap,
		})
		slog.Info("course completed", "user_id", userID, "course_id", courseID)
	}
	return res
}

// persistAdvance records the auto-advanced lesson. It runs under the
// session lock so a manual selection cannot be overwritten by it.
func (s *Service) persistAdvance(userID, courseID string, next course.Lesson) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	if _, err := s.progress.SetCurrentLesson(ctx, courseID, next.ID, userID); err != nil {
		slog.Error("auto-advance: update current lesson failed", "user_id", userID, "lesson_id", next.ID, "error", err)
	}
}

// advanced runs on the auto-advance timer after the session moved.
func (s *Service) advanced(userID, courseID string, next course.Lesson) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	s.metrics.AutoAdvances.Inc()
	s.push(ctx, notify.Message{
		UserID: userID,
		Type:   notify.TypeLessonAdvanced,
		Data:   map[string]string{"course_id": courseID, "lesson_id": next.ID, "title": next.Title},
	})
	slog.Debug("auto-advanced", "user_id", userID, "course_id", courseID, "lesson_id", next.ID)
}

// Select jumps the session to lessonID.
func (s *Service) Select(ctx context.Context, userID, lessonID string) (LessonView, error) {
	sess, err := s.session(userID)
	if err != nil {
		return LessonView{}, err
	}
	l, err := sess.Select(lessonID)
	if err != nil {
		return LessonView{}, err
	}
	if _, err := s.progress.SetCurrentLesson(ctx, sess.Course().ID, l.ID, userID); err != nil {
		return LessonView{}, err
	}
	return s.view(ctx, sess)
}

// Next moves the session forward. moved is false at the last lesson.
func (s *Service) Next(ctx context.Context, userID string) (view LessonView, moved bool, err error) {
	return s.step(ctx, userID, (*navigation.Session).Next)
}

// Previous moves the session back. moved is false at the first lesson.
func (s *Service) Previous(ctx context.Context, userID string) (view LessonView, moved bool, err error) {
	return s.step(ctx, userID, (*navigation.Session).Previous)
}

func (s *Service) step(ctx context.Context, userID string, move func(*navigation.Session) (course.Lesson, bool)) (LessonView, bool, error) {
	sess, err := s.session(userID)
	if err != nil {
		return LessonView{}, false, err
	}
	l, moved := move(sess)
	if moved {
		if _, err := s.progress.SetCurrentLesson(ctx, sess.Course().ID, l.ID, userID); err != nil {
			return LessonView{}, false, err
		}
	}
	view, err := s.view(ctx, sess)
	return view, moved, err
}

// AddNote stores a note as given.
func (s *Service) AddNote(ctx context.Context, n notes.Note) (notes.Note, error) {
	n, err := s.notes.Add(ctx, n)
	if err != nil {
		return notes.Note{}, err
	}
	s.metrics.NotesAdded.Inc()
	s.logEvent(ctx, events.Event{
		UserID:   n.UserID,
		LessonID: n.LessonID,
		Type:     events.TypeNoteAdded,
		Data:     map[string]any{"timestamp": n.Timestamp},
	})
	return n, nil
}

// AddNoteAtPosition stores a note on the session's current lesson at the
// last reported playback position.
func (s *Service) AddNoteAtPosition(ctx context.Context, userID, content string) (notes.Note, error) {
	sess, err := s.session(userID)
	if err != nil {
		return notes.Note{}, err
	}
	return s.AddNote(ctx, notes.Note{
		LessonID:  sess.Current().ID,
		UserID:    userID,
		Content:   content,
		Timestamp: sess.Position(),
	})
}

// Notes returns a lesson's notes in timeline order.
func (s *Service) Notes(ctx context.Context, lessonID string) ([]notes.Note, error) {
	return s.notes.ForLesson(ctx, lessonID)
}

// UserNotes returns one user's notes for a lesson in timeline order.
func (s *Service) UserNotes(ctx context.Context, userID, lessonID string) ([]notes.Note, error) {
	return s.notes.ForUserLesson(ctx, userID, lessonID)
}

// DeleteNote removes a note.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	return s.notes.Delete(ctx, id)
}

// Achievements evaluates the catalog for a user in a course. Streak and
// watch time span all of the user's courses.
func (s *Service) Achievements(ctx context.Context, userID, courseID string) (achievement.Report, error) {
	snap, _, err := s.progress.CourseProgress(ctx, courseID, userID)
	if err != nil {
		return achievement.Report{}, err
	}
	st, err := s.progress.Stats(ctx, userID)
	if err != nil {
		return achievement.Report{}, err
	}
	return achievement.Evaluate(achievement.Counters{
		Completed:    snap.CompletedCount,
		Total:        snap.TotalLessons,
		StreakDays:   st.StreakDays,
		WatchMinutes: st.WatchMinutes,
	}), nil
}

// Close ends a user's session and cancels its pending auto-advance.
func (s *Service) Close(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		sess.Close()
		delete(s.sessions, userID)
		s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
}

// Shutdown closes every session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
	s.metrics.ActiveSessions.Set(0)
}

func (s *Service) session(userID string) (*navigation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNoSession)
	}
	return sess, nil
}

func (s *Service) view(ctx context.Context, sess *navigation.Session) (LessonView, error) {
	c := sess.Course()
	l := sess.Current()
	snap, _, err := s.progress.CourseProgress(ctx, c.ID, sess.UserID())
	if err != nil {
		return LessonView{}, err
	}
	pos, _ := navigation.PositionOf(c, l.ID)
	_, hasNext := navigation.Next(c, l.ID)
	_, hasPrev := navigation.Previous(c, l.ID)
	return LessonView{
		CourseID: c.ID,
		Lesson:   l,
		Position: pos,
		HasNext:  hasNext,
		HasPrev:  hasPrev,
		Progress: snap,
	}, nil
}

func (s *Service) logEvent(ctx context.Context, e events.Event) {
	if err := s.events.Log(ctx, e); err != nil {
		slog.Warn("failed to log event", "type", e.Type, "user_id", e.UserID, "error", err)
	}
}

func (s *Service) push(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	result := "ok"
	if err := s.notifier.Broadcast(ctx, msg); err != nil {
		result = "error"
		slog.Warn("failed to push notification", "type", msg.Type, "user_id", msg.UserID, "error", err)
	}
	s.metrics.Notifications.WithLabelValues(msg.Type, result).Inc()
}
