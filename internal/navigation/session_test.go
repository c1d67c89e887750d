package navigation_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/course/coursetest"
	"github.com/p-n-ai/pai-classroom/internal/navigation"
)

func TestNewSession(t *testing.T) {
	c := coursetest.Sample()

	s, err := navigation.NewSession("u1", c, "")
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if s.Current().ID != "lesson-1-1" {
		t.Errorf("Current() = %q, want first lesson", s.Current().ID)
	}

	_, err = navigation.NewSession("u1", c, "missing")
	if !errors.Is(err, course.ErrLessonNotFound) {
		t.Errorf("NewSession(missing) error = %v, want ErrLessonNotFound", err)
	}

	_, err = navigation.NewSession("u1", coursetest.Build("empty"), "")
	if !errors.Is(err, course.ErrLessonNotFound) {
		t.Errorf("NewSession(empty course) error = %v, want ErrLessonNotFound", err)
	}
}

func TestSession_NextPrevious(t *testing.T) {
	s, _ := navigation.NewSession("u1", coursetest.Sample(), "lesson-3-1")

	if _, ok := s.Next(); ok {
		t.Error("Next() at last lesson should report false")
	}
	if s.Current().ID != "lesson-3-1" {
		t.Errorf("Current() = %q, want lesson-3-1 unchanged", s.Current().ID)
	}

	prev, ok := s.Previous()
	if !ok || prev.ID != "lesson-2-2" {
		t.Errorf("Previous() = %q/%v, want lesson-2-2/true", prev.ID, ok)
	}
}

func TestSession_SetPosition_ResetOnMove(t *testing.T) {
	s, _ := navigation.NewSession("u1", coursetest.Sample(), "lesson-1-1")

	s.SetPosition(42)
	if s.Position() != 42 {
		t.Errorf("Position() = %d, want 42", s.Position())
	}
	s.Next()
	if s.Position() != 0 {
		t.Errorf("Position() = %d after Next, want 0", s.Position())
	}
}

func TestSession_ScheduleAdvance_Fires(t *testing.T) {
	s, _ := navigation.NewSession("u1", coursetest.Sample(), "lesson-1-3")

	advanced := make(chan course.Lesson, 1)
	s.ScheduleAdvance(10*time.Millisecond, nil, func(next course.Lesson) {
		advanced <- next
	})

	select {
	case next := <-advanced:
		if next.ID != "lesson-2-1" {
			t.Errorf("advanced to %q, want lesson-2-1", next.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("auto-advance did not fire")
	}

	if s.Current().ID != "lesson-2-1" {
		t.Errorf("Current() = %q, want lesson-2-1", s.Current().ID)
	}
	if s.AdvancePending() {
		t.Error("AdvancePending() = true after firing")
	}
}

func TestSession_ScheduleAdvance_CommitBlocksSelect(t *testing.T) {
	s, _ := navigation.NewSession("u1", coursetest.Sample(), "lesson-1-1")

	var (
		mu      sync.Mutex
		persist []string
	)
	record := func(id string) {
		mu.Lock()
		persist = append(persist, id)
		mu.Unlock()
	}

	committing := make(chan struct{})
	release := make(chan struct{})
	s.ScheduleAdvance(time.Millisecond, func(next course.Lesson) {
		close(committing)
		<-release
		record(next.ID)
	}, nil)

	select {
	case <-committing:
	case <-time.After(time.Second):
		t.Fatal("auto-advance did not fire")
	}

	selected := make(chan error, 1)
	go func() {
		l, err := s.Select("lesson-3-1")
		if err == nil {
			record(l.ID)
		}
		selected <- err
	}()

	select {
	case <-selected:
		t.Fatal("Select() returned while the auto-advance was committing")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)

	if err := <-selected; err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if s.Current().ID != "lesson-3-1" {
		t.Errorf("Current() = %q, want lesson-3-1", s.Current().ID)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(persist) != 2 || persist[0] != "lesson-1-2" || persist[1] != "lesson-3-1" {
		t.Errorf("persisted order = %v, want [lesson-1-2 lesson-3-1]", persist)
	}
}

func TestSession_ScheduleAdvance_CancelledByNavigation(t *testing.T) {
	s, _ := navigation.NewSession("u1", coursetest.Sample(), "lesson-1-1")

	fired := make(chan struct{}, 1)
	s.ScheduleAdvance(20*time.Millisecond, func(course.Lesson) {
		fired <- struct{}{}
	}, nil)
	if !s.AdvancePending() {
		t.Fatal("AdvancePending() = false after ScheduleAdvance")
	}

	if _, err := s.Select("lesson-2-2"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	select {
	case <-fired:
		t.Fatal("stale auto-advance fired after manual navigation")
	case <-time.After(80 * time.Millisecond):
	}

	if s.Current().ID != "lesson-2-2" {
		t.Errorf("Current() = %q, want lesson-2-2", s.Current().ID)
	}
}

func TestSession_ScheduleAdvance_Replaced(t *testing.T) {
	s, _ := navigation.NewSession("u1", coursetest.Sample(), "lesson-1-1")

	calls := make(chan string, 2)
	s.ScheduleAdvance(time.Hour, nil, func(next course.Lesson) { calls <- "first" })
	s.ScheduleAdvance(10*time.Millisecond, nil, func(next course.Lesson) { calls <- "second" })

	select {
	case got := <-calls:
		if got != "second" {
			t.Errorf("callback = %q, want second", got)
		}
	case <-time.After(time.Second):
		t.Fatal("replacement auto-advance did not fire")
	}
	if s.Current().ID != "lesson-1-2" {
		t.Errorf("Current() = %q, want lesson-1-2 (advanced once)", s.Current().ID)
	}
}

func TestSession_ScheduleAdvance_AtLastLesson(t *testing.T) {
	s, _ := navigation.NewSession("u1", coursetest.Sample(), "lesson-3-1")

	called := make(chan struct{}, 1)
	s.ScheduleAdvance(5*time.Millisecond, func(course.Lesson) { called <- struct{}{} }, nil)

	select {
	case <-called:
		t.Fatal("callback should not run when there is no next lesson")
	case <-time.After(50 * time.Millisecond):
	}
	if s.Current().ID != "lesson-3-1" {
		t.Errorf("Current() = %q, want lesson-3-1", s.Current().ID)
	}
}

func TestSession_Close(t *testing.T) {
	s, _ := navigation.NewSession("u1", coursetest.Sample(), "lesson-1-1")

	s.ScheduleAdvance(10*time.Millisecond, func(course.Lesson) {
		t.Error("commit ran after Close")
	}, func(course.Lesson) {
		t.Error("callback ran after Close")
	})
	s.Close()
	time.Sleep(40 * time.Millisecond)

	if _, err := s.Select("lesson-1-2"); !errors.Is(err, navigation.ErrSessionClosed) {
		t.Errorf("Select() after Close error = %v, want ErrSessionClosed", err)
	}
	if s.CancelAdvance() {
		t.Error("CancelAdvance() = true after Close")
	}
}
