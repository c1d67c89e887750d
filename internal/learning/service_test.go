package learning_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/course/coursetest"
	"github.com/p-n-ai/pai-classroom/internal/events"
	"github.com/p-n-ai/pai-classroom/internal/learning"
	"github.com/p-n-ai/pai-classroom/internal/navigation"
	"github.com/p-n-ai/pai-classroom/internal/notes"
	"github.com/p-n-ai/pai-classroom/internal/notify"
	"github.com/p-n-ai/pai-classroom/internal/platform/metrics"
	"github.com/p-n-ai/pai-classroom/internal/progress"
)

type fixture struct {
	svc     *learning.Service
	engine  *progress.Engine
	events  *events.Memory
	channel *notify.MockChannel
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, delay time.Duration) fixture {
	t.Helper()
	catalog := course.NewMemoryCatalog(coursetest.Sample(), coursetest.Build("2", 2))
	engine := progress.NewEngine(progress.EngineConfig{Courses: catalog})
	ev := events.NewMemory()
	ch := &notify.MockChannel{}
	gw := notify.NewGateway()
	gw.Register("mock", ch)
	m := metrics.New()

	svc := learning.NewService(learning.Config{
		Catalog:          catalog,
		Progress:         engine,
		Notes:            notes.NewService(nil),
		Events:           ev,
		Notifier:         gw,
		Metrics:          m,
		AutoAdvanceDelay: delay,
	})
	t.Cleanup(svc.Shutdown)
	return fixture{svc: svc, engine: engine, events: ev, channel: ch, metrics: m}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func messagesOfType(ch *notify.MockChannel, typ string) []notify.Message {
	var out []notify.Message
	for _, m := range ch.Messages() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func TestService_OpenLesson(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	view, err := f.svc.OpenLesson(ctx, "u1", "1", "lesson-2-1")
	if err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	if view.Lesson.ID != "lesson-2-1" {
		t.Errorf("Lesson = %q, want lesson-2-1", view.Lesson.ID)
	}
	if view.Position != (navigation.Position{Index: 4, Total: 6}) {
		t.Errorf("Position = %+v, want 4 of 6", view.Position)
	}
	if !view.HasNext || !view.HasPrev {
		t.Errorf("HasNext=%v HasPrev=%v, want both true", view.HasNext, view.HasPrev)
	}
	if view.Progress.CurrentLesson != "lesson-2-1" {
		t.Errorf("CurrentLesson = %q, want lesson-2-1", view.Progress.CurrentLesson)
	}
	if got := len(f.events.OfType(events.TypeLessonOpened)); got != 1 {
		t.Errorf("lesson_opened events = %d, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.ActiveSessions); got != 1 {
		t.Errorf("ActiveSessions = %v, want 1", got)
	}
}

func TestService_OpenLesson_Resume(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	if _, err := f.engine.SetCurrentLesson(ctx, "1", "lesson-1-3", "u1"); err != nil {
		t.Fatalf("SetCurrentLesson() error = %v", err)
	}
	view, err := f.svc.OpenLesson(ctx, "u1", "1", "")
	if err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	if view.Lesson.ID != "lesson-1-3" {
		t.Errorf("Lesson = %q, want resumed lesson-1-3", view.Lesson.ID)
	}

	view, err = f.svc.OpenLesson(ctx, "u2", "1", "")
	if err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	if view.Lesson.ID != "lesson-1-1" {
		t.Errorf("Lesson = %q, want first lesson for a new learner", view.Lesson.ID)
	}
}

func TestService_OpenLesson_Errors(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	tests := []struct {
		name     string
		courseID string
		lessonID string
		want     error
	}{
		{"unknown course", "nope", "", course.ErrCourseNotFound},
		{"unknown lesson", "1", "nope", course.ErrLessonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.OpenLesson(ctx, "u1", tt.courseID, tt.lessonID)
			if !errors.Is(err, tt.want) {
				t.Errorf("OpenLesson() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestService_NoSession(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	if err := f.svc.VideoProgress("ghost", 10, 600); !errors.Is(err, learning.ErrNoSession) {
		t.Errorf("VideoProgress() error = %v, want ErrNoSession", err)
	}
	if _, err := f.svc.VideoComplete(ctx, "ghost"); !errors.Is(err, learning.ErrNoSession) {
		t.Errorf("VideoComplete() error = %v, want ErrNoSession", err)
	}
	if _, _, err := f.svc.Next(ctx, "ghost"); !errors.Is(err, learning.ErrNoSession) {
		t.Errorf("Next() error = %v, want ErrNoSession", err)
	}
	if _, err := f.svc.AddNoteAtPosition(ctx, "ghost", "hi"); !errors.Is(err, learning.ErrNoSession) {
		t.Errorf("AddNoteAtPosition() error = %v, want ErrNoSession", err)
	}
}

func TestService_VideoComplete_AutoAdvance(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	ctx := context.Background()

	if _, err := f.svc.OpenLesson(ctx, "u1", "1", "lesson-1-1"); err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	res, err := f.svc.VideoComplete(ctx, "u1")
	if err != nil {
		t.Fatalf("VideoComplete() error = %v", err)
	}
	if !res.Changed {
		t.Error("Changed should be true for a first completion")
	}
	if res.Progress.ProgressPercentage != 17 {
		t.Errorf("ProgressPercentage = %d, want 17", res.Progress.ProgressPercentage)
	}
	if !res.AdvanceScheduled || res.NextLesson == nil || res.NextLesson.ID != "lesson-1-2" {
		t.Fatalf("advance = %v next = %+v, want scheduled to lesson-1-2", res.AdvanceScheduled, res.NextLesson)
	}

	waitFor(t, func() bool { return len(messagesOfType(f.channel, notify.TypeLessonAdvanced)) == 1 })

	view, err := f.svc.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if view.Lesson.ID != "lesson-1-2" {
		t.Errorf("current lesson = %q, want lesson-1-2", view.Lesson.ID)
	}
	waitFor(t, func() bool {
		snap, _, _ := f.engine.CourseProgress(ctx, "1", "u1")
		return snap.CurrentLesson == "lesson-1-2"
	})
	if got := testutil.ToFloat64(f.metrics.AutoAdvances); got != 1 {
		t.Errorf("AutoAdvances = %v, want 1", got)
	}
	if got := len(f.events.OfType(events.TypeLessonCompleted)); got != 1 {
		t.Errorf("lesson_completed events = %d, want 1", got)
	}
}

func TestService_VideoComplete_Idempotent(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	if _, err := f.svc.OpenLesson(ctx, "u1", "1", "lesson-1-1"); err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	for range 2 {
		if _, err := f.svc.VideoComplete(ctx, "u1"); err != nil {
			t.Fatalf("VideoComplete() error = %v", err)
		}
	}

	snap, _, err := f.engine.CourseProgress(ctx, "1", "u1")
	if err != nil {
		t.Fatalf("CourseProgress() error = %v", err)
	}
	if snap.CompletedCount != 1 {
		t.Errorf("CompletedCount = %d, want 1", snap.CompletedCount)
	}
	if got := len(f.events.OfType(events.TypeLessonCompleted)); got != 1 {
		t.Errorf("lesson_completed events = %d, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.LessonsCompleted); got != 1 {
		t.Errorf("LessonsCompleted = %v, want 1", got)
	}
}

func TestService_NavigationCancelsAdvance(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	ctx := context.Background()

	if _, err := f.svc.OpenLesson(ctx, "u1", "1", "lesson-1-1"); err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	if _, err := f.svc.VideoComplete(ctx, "u1"); err != nil {
		t.Fatalf("VideoComplete() error = %v", err)
	}
	view, err := f.svc.Select(ctx, "u1", "lesson-3-1")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if view.Lesson.ID != "lesson-3-1" {
		t.Errorf("Lesson = %q, want lesson-3-1", view.Lesson.ID)
	}

	time.Sleep(150 * time.Millisecond)

	view, err = f.svc.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if view.Lesson.ID != "lesson-3-1" {
		t.Errorf("Lesson after delay = %q, want lesson-3-1 (advance cancelled)", view.Lesson.ID)
	}
	if got := len(messagesOfType(f.channel, notify.TypeLessonAdvanced)); got != 0 {
		t.Errorf("lesson_advanced messages = %d, want 0", got)
	}
}

func TestService_CourseCompleted(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	if _, err := f.svc.OpenLesson(ctx, "u1", "2", "lesson-1-1"); err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	if _, err := f.svc.VideoComplete(ctx, "u1"); err != nil {
		t.Fatalf("VideoComplete() error = %v", err)
	}
	if _, moved, err := f.svc.Next(ctx, "u1"); err != nil || !moved {
		t.Fatalf("Next() moved = %v, error = %v", moved, err)
	}
	res, err := f.svc.VideoComplete(ctx, "u1")
	if err != nil {
		t.Fatalf("VideoComplete() error = %v", err)
	}
	if !res.CourseCompleted {
		t.Error("CourseCompleted should be true")
	}
	if res.AdvanceScheduled {
		t.Error("no advance should be scheduled after the course is complete")
	}
	if !res.Progress.CertificateEarned {
		t.Error("CertificateEarned should be true")
	}
	if got := len(f.events.OfType(events.TypeCourseCompleted)); got != 1 {
		t.Errorf("course_completed events = %d, want 1", got)
	}
	if got := len(messagesOfType(f.channel, notify.TypeCourseCompleted)); got != 1 {
		t.Errorf("course_completed messages = %d, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.CoursesCompleted); got != 1 {
		t.Errorf("CoursesCompleted = %v, want 1", got)
	}
}

func TestService_AutoAdvancePersistedBeforeNotify(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	ctx := context.Background()

	if _, err := f.svc.OpenLesson(ctx, "u1", "1", "lesson-1-1"); err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	if _, err := f.svc.VideoComplete(ctx, "u1"); err != nil {
		t.Fatalf("VideoComplete() error = %v", err)
	}
	waitFor(t, func() bool { return len(messagesOfType(f.channel, notify.TypeLessonAdvanced)) == 1 })

	snap, _, err := f.engine.CourseProgress(ctx, "1", "u1")
	if err != nil {
		t.Fatalf("CourseProgress() error = %v", err)
	}
	if snap.CurrentLesson != "lesson-1-2" {
		t.Errorf("CurrentLesson = %q when advance was announced, want lesson-1-2", snap.CurrentLesson)
	}

	if _, err := f.svc.Select(ctx, "u1", "lesson-3-1"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	snap, _, _ = f.engine.CourseProgress(ctx, "1", "u1")
	if snap.CurrentLesson != "lesson-3-1" {
		t.Errorf("CurrentLesson after Select = %q, want lesson-3-1", snap.CurrentLesson)
	}
}

func TestService_StayOnLesson(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	ctx := context.Background()

	if _, err := f.svc.StayOnLesson("ghost"); !errors.Is(err, learning.ErrNoSession) {
		t.Errorf("StayOnLesson() error = %v, want ErrNoSession", err)
	}
	if _, err := f.svc.OpenLesson(ctx, "u1", "1", "lesson-1-1"); err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	if _, err := f.svc.VideoComplete(ctx, "u1"); err != nil {
		t.Fatalf("VideoComplete() error = %v", err)
	}

	cancelled, err := f.svc.StayOnLesson("u1")
	if err != nil {
		t.Fatalf("StayOnLesson() error = %v", err)
	}
	if !cancelled {
		t.Error("StayOnLesson() = false, want true with an advance pending")
	}
	if cancelled, _ := f.svc.StayOnLesson("u1"); cancelled {
		t.Error("second StayOnLesson() = true, want false")
	}

	time.Sleep(100 * time.Millisecond)

	view, err := f.svc.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if view.Lesson.ID != "lesson-1-1" {
		t.Errorf("Lesson = %q, want lesson-1-1", view.Lesson.ID)
	}
	if got := len(messagesOfType(f.channel, notify.TypeLessonAdvanced)); got != 0 {
		t.Errorf("lesson_advanced messages = %d, want 0", got)
	}
}

func TestService_MarkComplete(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	ctx := context.Background()

	res, err := f.svc.MarkComplete(ctx, "u1", "2", "lesson-1-1")
	if err != nil {
		t.Fatalf("MarkComplete() error = %v", err)
	}
	if !res.Changed || res.CourseCompleted || res.AdvanceScheduled {
		t.Errorf("MarkComplete() = %+v, want changed only", res)
	}

	res, err = f.svc.MarkComplete(ctx, "u1", "2", "lesson-1-2")
	if err != nil {
		t.Fatalf("MarkComplete() error = %v", err)
	}
	if !res.CourseCompleted {
		t.Error("CourseCompleted should be true after the last lesson")
	}
	if _, err := f.svc.MarkComplete(ctx, "u1", "2", "lesson-1-2"); err != nil {
		t.Fatalf("repeat MarkComplete() error = %v", err)
	}
	if _, err := f.svc.MarkComplete(ctx, "u1", "2", "nope"); !errors.Is(err, course.ErrLessonNotFound) {
		t.Errorf("MarkComplete(unknown) error = %v, want ErrLessonNotFound", err)
	}

	if got := len(f.events.OfType(events.TypeLessonCompleted)); got != 2 {
		t.Errorf("lesson_completed events = %d, want 2", got)
	}
	if got := len(f.events.OfType(events.TypeCourseCompleted)); got != 1 {
		t.Errorf("course_completed events = %d, want 1", got)
	}
	if got := len(messagesOfType(f.channel, notify.TypeCourseCompleted)); got != 1 {
		t.Errorf("course_completed messages = %d, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.LessonsCompleted); got != 2 {
		t.Errorf("LessonsCompleted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(f.metrics.CoursesCompleted); got != 1 {
		t.Errorf("CoursesCompleted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.AutoAdvances); got != 0 {
		t.Errorf("AutoAdvances = %v, want 0", got)
	}
}

func TestService_UserNotes(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	for _, n := range []notes.Note{
		{LessonID: "lesson-1-1", UserID: "u1", Content: "mine late", Timestamp: 90},
		{LessonID: "lesson-1-1", UserID: "u2", Content: "theirs", Timestamp: 10},
		{LessonID: "lesson-1-1", UserID: "u1", Content: "mine early", Timestamp: 30},
		{LessonID: "lesson-1-2", UserID: "u1", Content: "other lesson", Timestamp: 5},
	} {
		if _, err := f.svc.AddNote(ctx, n); err != nil {
			t.Fatalf("AddNote() error = %v", err)
		}
	}

	got, err := f.svc.UserNotes(ctx, "u1", "lesson-1-1")
	if err != nil {
		t.Fatalf("UserNotes() error = %v", err)
	}
	if len(got) != 2 || got[0].Content != "mine early" || got[1].Content != "mine late" {
		t.Errorf("UserNotes() = %+v, want u1's two notes in timeline order", got)
	}
}

func TestService_NextPreviousBounds(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	if _, err := f.svc.OpenLesson(ctx, "u1", "1", "lesson-1-1"); err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	view, moved, err := f.svc.Previous(ctx, "u1")
	if err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	if moved || view.Lesson.ID != "lesson-1-1" {
		t.Errorf("Previous() at first lesson = %q moved=%v, want stay", view.Lesson.ID, moved)
	}

	if _, err := f.svc.Select(ctx, "u1", "lesson-3-1"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	view, moved, err = f.svc.Next(ctx, "u1")
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if moved || view.HasNext {
		t.Errorf("Next() at last lesson moved=%v HasNext=%v, want false", moved, view.HasNext)
	}

	view, moved, err = f.svc.Previous(ctx, "u1")
	if err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	if !moved || view.Lesson.ID != "lesson-2-2" {
		t.Errorf("Previous() = %q moved=%v, want lesson-2-2", view.Lesson.ID, moved)
	}
}

func TestService_AddNoteAtPosition(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	if _, err := f.svc.OpenLesson(ctx, "u1", "1", "lesson-1-2"); err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	if err := f.svc.VideoProgress("u1", 700, 600); err != nil {
		t.Fatalf("VideoProgress() error = %v", err)
	}
	if err := f.svc.VideoProgress("u1", 95, 600); err != nil {
		t.Fatalf("VideoProgress() error = %v", err)
	}
	n, err := f.svc.AddNoteAtPosition(ctx, "u1", "useEffect cleanup")
	if err != nil {
		t.Fatalf("AddNoteAtPosition() error = %v", err)
	}
	if n.LessonID != "lesson-1-2" || n.Timestamp != 95 || n.UserID != "u1" {
		t.Errorf("note = %+v, want lesson-1-2 at 95s by u1", n)
	}

	if _, err := f.svc.AddNote(ctx, notes.Note{LessonID: "lesson-1-2", UserID: "u1", Content: "intro", Timestamp: 5}); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	list, err := f.svc.Notes(ctx, "lesson-1-2")
	if err != nil {
		t.Fatalf("Notes() error = %v", err)
	}
	if len(list) != 2 || list[0].Content != "intro" {
		t.Errorf("Notes() = %+v, want intro first", list)
	}
	if got := len(f.events.OfType(events.TypeNoteAdded)); got != 2 {
		t.Errorf("note_added events = %d, want 2", got)
	}

	if err := f.svc.DeleteNote(ctx, n.ID); err != nil {
		t.Fatalf("DeleteNote() error = %v", err)
	}
	if err := f.svc.DeleteNote(ctx, n.ID); !errors.Is(err, notes.ErrNoteNotFound) {
		t.Errorf("DeleteNote() twice error = %v, want ErrNoteNotFound", err)
	}
}

func TestService_Dashboard(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	d, err := f.svc.Dashboard(ctx, "u1", "1")
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if d.Progress.ProgressPercentage != 0 || d.CurrentLesson == nil || d.CurrentLesson.ID != "lesson-1-1" {
		t.Errorf("fresh dashboard = %d%% at %+v, want 0%% at lesson-1-1", d.Progress.ProgressPercentage, d.CurrentLesson)
	}

	for _, id := range []string{"lesson-1-1", "lesson-1-2", "lesson-1-3"} {
		if _, _, err := f.engine.MarkComplete(ctx, "1", id, "u1"); err != nil {
			t.Fatalf("MarkComplete(%s) error = %v", id, err)
		}
	}
	d, err = f.svc.Dashboard(ctx, "u1", "1")
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if d.Progress.ProgressPercentage != 50 {
		t.Errorf("ProgressPercentage = %d, want 50", d.Progress.ProgressPercentage)
	}
	if len(d.Units) != 3 || d.Units[0].Percentage != 100 || d.Units[1].Percentage != 0 {
		t.Errorf("Units = %+v, want first unit 100%% and second 0%%", d.Units)
	}
	if len(d.Lessons) != 6 {
		t.Errorf("Lessons = %d, want 6", len(d.Lessons))
	}
	if d.Position == nil || d.Position.Index != 3 {
		t.Errorf("Position = %+v, want index 3", d.Position)
	}
	if d.Achievements.UnlockedCount == 0 {
		t.Error("first-steps achievement should be unlocked")
	}

	if _, err := f.svc.Dashboard(ctx, "u1", "nope"); !errors.Is(err, course.ErrCourseNotFound) {
		t.Errorf("Dashboard() unknown course error = %v, want ErrCourseNotFound", err)
	}
}

func TestService_Close(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	if _, err := f.svc.OpenLesson(ctx, "u1", "1", ""); err != nil {
		t.Fatalf("OpenLesson() error = %v", err)
	}
	f.svc.Close("u1")
	if _, err := f.svc.Current(ctx, "u1"); !errors.Is(err, learning.ErrNoSession) {
		t.Errorf("Current() after Close error = %v, want ErrNoSession", err)
	}
	if got := testutil.ToFloat64(f.metrics.ActiveSessions); got != 0 {
		t.Errorf("ActiveSessions = %v, want 0", got)
	}
}
