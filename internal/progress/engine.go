package progress

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/navigation"
)

// CourseSource resolves courses by id.
type CourseSource interface {
	GetCourse(id string) (course.Course, bool)
}

// EngineConfig holds dependencies for the progress engine.
type EngineConfig struct {
	Courses          CourseSource
	Store            Store
	SequentialUnlock bool             // lock lessons until the previous one is complete
	Now              func() time.Time // defaults to time.Now
}

// Engine records lesson completions and derives course progress from them.
type Engine struct {
	courses    CourseSource
	store      Store
	sequential bool
	now        func() time.Time
}

// NewEngine creates a new progress engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		courses:    cfg.Courses,
		store:      store,
		sequential: cfg.SequentialUnlock,
		now:        now,
	}
}

// MarkComplete adds lessonID to the user's completed set for the course. It
// is idempotent on the set but always refreshes the current lesson and
// last-watched time. changed reports whether the set grew.
func (e *Engine) MarkComplete(ctx context.Context, courseID, lessonID, userID string) (snap Snapshot, changed bool, err error) {
	c, err := e.lookup(courseID)
	if err != nil {
		return Snapshot{}, false, err
	}
	if !c.HasLesson(lessonID) {
		return Snapshot{}, false, fmt.Errorf("complete %s in course %s: %w", lessonID, courseID, course.ErrLessonNotFound)
	}

	if e.sequential {
		rec, _, err := e.store.Get(ctx, courseID, userID)
		if err != nil {
			return Snapshot{}, false, err
		}
		if isLocked(c, rec, lessonID) {
			return Snapshot{}, false, fmt.Errorf("complete %s in course %s: %w", lessonID, courseID, ErrLessonLocked)
		}
	}

	added, err := e.store.Complete(ctx, courseID, userID, lessonID, e.now())
	if err != nil {
		return Snapshot{}, false, err
	}

	rec, _, err := e.store.Get(ctx, courseID, userID)
	if err != nil {
		return Snapshot{}, false, err
	}
	snap = snapshotOf(c, userID, &rec)

	slog.Debug("lesson completed",
		"course_id", courseID,
		"lesson_id", lessonID,
		"user_id", userID,
		"new", added,
		"percentage", snap.ProgressPercentage,
	)
	return snap, added, nil
}

// CourseProgress returns the user's progress in a course. found is false
// when the user has never started it; the snapshot then has status
// not_started and 0%.
func (e *Engine) CourseProgress(ctx context.Context, courseID, userID string) (snap Snapshot, found bool, err error) {
	c, err := e.lookup(courseID)
	if err != nil {
		return Snapshot{}, false, err
	}
	rec, found, err := e.store.Get(ctx, courseID, userID)
	if err != nil {
		return Snapshot{}, false, err
	}
	if !found {
		return snapshotOf(c, userID, nil), false, nil
	}
	return snapshotOf(c, userID, &rec), true, nil
}

// SetCurrentLesson moves the user's current-lesson pointer without
// completing anything. A missing record is created with an empty set.
func (e *Engine) SetCurrentLesson(ctx context.Context, courseID, lessonID, userID string) (Snapshot, error) {
	c, err := e.lookup(courseID)
	if err != nil {
		return Snapshot{}, err
	}
	if !c.HasLesson(lessonID) {
		return Snapshot{}, fmt.Errorf("select %s in course %s: %w", lessonID, courseID, course.ErrLessonNotFound)
	}
	if err := e.store.Touch(ctx, courseID, userID, lessonID, e.now()); err != nil {
		return Snapshot{}, err
	}
	rec, _, err := e.store.Get(ctx, courseID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(c, userID, &rec), nil
}

// UnitProgress returns per-unit completion in course order.
func (e *Engine) UnitProgress(ctx context.Context, courseID, userID string) ([]UnitProgress, error) {
	c, err := e.lookup(courseID)
	if err != nil {
		return nil, err
	}
	rec, _, err := e.store.Get(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}

	units := make([]UnitProgress, 0, len(c.Units))
	for _, u := range c.Units {
		done := 0
		for _, l := range u.Lessons {
			if rec.Has(l.ID) {
				done++
			}
		}
		units = append(units, UnitProgress{
			UnitID:     u.ID,
			Title:      u.Title,
			Completed:  done,
			Total:      len(u.Lessons),
			Percentage: Percentage(done, len(u.Lessons)),
		})
	}
	return units, nil
}

// LessonStates returns the sidebar state of every lesson in storage order.
func (e *Engine) LessonStates(ctx context.Context, courseID, userID string) ([]LessonStatus, error) {
	c, err := e.lookup(courseID)
	if err != nil {
		return nil, err
	}
	rec, _, err := e.store.Get(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}

	lessons := navigation.Flatten(c)
	states := make([]LessonStatus, 0, len(lessons))
	for i, l := range lessons {
		state := LessonAvailable
		switch {
		case rec.Has(l.ID):
			state = LessonCompleted
		case l.ID == rec.CurrentLesson:
			state = LessonCurrent
		case e.sequential && i > 0 && !rec.Has(lessons[i-1].ID):
			state = LessonLocked
		}
		states = append(states, LessonStatus{LessonID: l.ID, UnitID: l.UnitID, State: state})
	}
	return states, nil
}

// UserProgress returns snapshots of every course the user has started, most
// recently watched first. Records of courses no longer in the catalog are
// skipped.
func (e *Engine) UserProgress(ctx context.Context, userID string) ([]Snapshot, error) {
	records, err := e.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snaps := make([]Snapshot, 0, len(records))
	for i := range records {
		c, ok := e.courses.GetCourse(records[i].CourseID)
		if !ok {
			continue
		}
		snaps = append(snaps, snapshotOf(c, userID, &records[i]))
	}
	slices.SortFunc(snaps, func(a, b Snapshot) int {
		return b.LastWatched.Compare(a.LastWatched)
	})
	return snaps, nil
}

// Stats aggregates a user's activity across courses. The streak counts
// consecutive UTC days with at least one completion, ending today or
// yesterday.
func (e *Engine) Stats(ctx context.Context, userID string) (Stats, error) {
	records, err := e.store.ListByUser(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	var watched time.Duration
	days := make(map[string]bool)
	for _, rec := range records {
		c, ok := e.courses.GetCourse(rec.CourseID)
		if !ok {
			continue
		}
		st.CoursesStarted++
		done := 0
		for _, l := range navigation.Flatten(c) {
			at, ok := rec.Completed[l.ID]
			if !ok {
				continue
			}
			done++
			days[day(at)] = true
			if d, err := course.ParseDuration(l.Duration); err == nil {
				watched += d
			}
		}
		st.CompletedLessons += done
		if total := c.LessonCount(); total > 0 && done == total {
			st.CoursesCompleted++
		}
		if rec.LastWatched.After(st.LastActive) {
			st.LastActive = rec.LastWatched
		}
	}

	st.WatchMinutes = int(watched / time.Minute)
	st.StreakDays = streak(days, day(e.now()))
	return st, nil
}

// Reset deletes a user's progress in a course.
func (e *Engine) Reset(ctx context.Context, courseID, userID string) error {
	if err := e.store.Delete(ctx, courseID, userID); err != nil {
		return err
	}
	slog.Info("progress reset", "course_id", courseID, "user_id", userID)
	return nil
}

func (e *Engine) lookup(courseID string) (course.Course, error) {
	c, ok := e.courses.GetCourse(courseID)
	if !ok {
		return course.Course{}, fmt.Errorf("course %s: %w", courseID, course.ErrCourseNotFound)
	}
	return c, nil
}

// isLocked reports whether lessonID is blocked by an incomplete predecessor.
func isLocked(c course.Course, rec Record, lessonID string) bool {
	i := navigation.IndexOf(c, lessonID)
	if i <= 0 || rec.Has(lessonID) {
		return false
	}
	lessons := navigation.Flatten(c)
	return !rec.Has(lessons[i-1].ID)
}

// snapshotOf derives the view of rec against the current course structure.
// A nil rec means the user never started the course.
func snapshotOf(c course.Course, userID string, rec *Record) Snapshot {
	total := c.LessonCount()
	snap := Snapshot{
		CourseID:         c.ID,
		UserID:           userID,
		Status:           StatusNotStarted,
		CompletedLessons: []string{},
		TotalLessons:     total,
	}
	if rec == nil {
		return snap
	}

	for _, l := range navigation.Flatten(c) {
		if rec.Has(l.ID) {
			snap.CompletedLessons = append(snap.CompletedLessons, l.ID)
		}
	}
	snap.CompletedCount = len(snap.CompletedLessons)
	snap.ProgressPercentage = Percentage(snap.CompletedCount, total)
	snap.CurrentLesson = rec.CurrentLesson
	snap.StartedAt = rec.StartedAt
	snap.LastWatched = rec.LastWatched
	snap.CertificateEarned = snap.ProgressPercentage == 100

	switch {
	case snap.CompletedCount == 0:
		snap.Status = StatusStarted
	case snap.CompletedCount == total:
		snap.Status = StatusCompleted
	default:
		snap.Status = StatusInProgress
	}
	return snap
}

const dayLayout = "2006-01-02"

func day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func streak(days map[string]bool, today string) int {
	cur, err := time.Parse(dayLayout, today)
	if err != nil {
		return 0
	}
	if !days[today] {
		cur = cur.AddDate(0, 0, -1)
	}
	n := 0
	for days[cur.Format(dayLayout)] {
		n++
		cur = cur.AddDate(0, 0, -1)
	}
	return n
}
