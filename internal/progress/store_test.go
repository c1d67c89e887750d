package progress_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/progress"
)

// testStore exercises the Store contract shared by every implementation.
func testStore(t *testing.T, store progress.Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, found, err := store.Get(ctx, "1", "u1"); err != nil || found {
		t.Fatalf("Get() on empty store = found %v, error %v", found, err)
	}

	added, err := store.Complete(ctx, "1", "u1", "lesson-1-1", at)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !added {
		t.Error("first Complete() should report added")
	}

	added, err = store.Complete(ctx, "1", "u1", "lesson-1-1", at.Add(time.Hour))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if added {
		t.Error("repeated Complete() should not report added")
	}

	rec, found, err := store.Get(ctx, "1", "u1")
	if err != nil || !found {
		t.Fatalf("Get() = found %v, error %v", found, err)
	}
	if len(rec.Completed) != 1 {
		t.Errorf("len(Completed) = %d, want 1", len(rec.Completed))
	}
	if got := rec.Completed["lesson-1-1"]; !got.Equal(at) {
		t.Errorf("completed at = %v, want first completion %v", got, at)
	}
	if !rec.LastWatched.Equal(at.Add(time.Hour)) {
		t.Errorf("LastWatched = %v, want %v", rec.LastWatched, at.Add(time.Hour))
	}
	if !rec.StartedAt.Equal(at) {
		t.Errorf("StartedAt = %v, want %v", rec.StartedAt, at)
	}

	if err := store.Touch(ctx, "1", "u1", "lesson-1-2", at.Add(2*time.Hour)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	rec, _, _ = store.Get(ctx, "1", "u1")
	if rec.CurrentLesson != "lesson-1-2" {
		t.Errorf("CurrentLesson = %q, want %q", rec.CurrentLesson, "lesson-1-2")
	}
	if len(rec.Completed) != 1 {
		t.Errorf("Touch() changed the completed set: %v", rec.Completed)
	}

	if err := store.Touch(ctx, "2", "u1", "intro", at); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if err := store.Touch(ctx, "1", "u2", "lesson-1-1", at); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	records, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("ListByUser() returned %d records, want 2", len(records))
	}
	for _, r := range records {
		if r.UserID != "u1" {
			t.Errorf("ListByUser() returned record of %q", r.UserID)
		}
		if r.CourseID == "1" && !r.Has("lesson-1-1") {
			t.Error("ListByUser() record is missing completed lessons")
		}
	}

	if err := store.Delete(ctx, "1", "u1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := store.Get(ctx, "1", "u1"); found {
		t.Error("Get() after Delete() should not find the record")
	}
	if err := store.Delete(ctx, "1", "u1"); !errors.Is(err, progress.ErrProgressNotFound) {
		t.Errorf("second Delete() error = %v, want ErrProgressNotFound", err)
	}
	if _, found, _ := store.Get(ctx, "1", "u2"); !found {
		t.Error("Delete() removed another user's record")
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, progress.NewMemoryStore())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := progress.NewMemoryStore()
	if _, err := store.Complete(ctx, "1", "u1", "lesson-1-1", time.Now()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	rec, _, _ := store.Get(ctx, "1", "u1")
	rec.Completed["lesson-1-2"] = time.Now()

	again, _, _ := store.Get(ctx, "1", "u1")
	if again.Has("lesson-1-2") {
		t.Error("mutating a returned Record changed the store")
	}
}

func TestMemoryStore_ConcurrentComplete(t *testing.T) {
	ctx := context.Background()
	store := progress.NewMemoryStore()
	lessons := []string{"a", "b", "c"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	addedCount := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			added, err := store.Complete(ctx, "1", "u1", id, time.Now())
			if err != nil {
				t.Errorf("Complete() error = %v", err)
				return
			}
			if added {
				mu.Lock()
				addedCount++
				mu.Unlock()
			}
		}(lessons[i%len(lessons)])
	}
	wg.Wait()

	if addedCount != len(lessons) {
		t.Errorf("added reported %d times, want %d", addedCount, len(lessons))
	}
	rec, _, _ := store.Get(ctx, "1", "u1")
	if len(rec.Completed) != len(lessons) {
		t.Errorf("len(Completed) = %d, want %d", len(rec.Completed), len(lessons))
	}
}
