package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed Store. Each record is a hash of scalar fields
// plus a hash of lesson id to completion time; HSETNX on the latter keeps the
// completed set idempotent. A per-user set indexes the user's courses.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed progress store. Keys are namespaced
// under prefix, "progress" when empty.
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if prefix == "" {
		prefix = "progress"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) recordKey(courseID, userID string) string {
	return fmt.Sprintf("%s:{%s}:%s", s.prefix, userID, courseID)
}

func (s *RedisStore) completedKey(courseID, userID string) string {
	return s.recordKey(courseID, userID) + ":completed"
}

func (s *RedisStore) coursesKey(userID string) string {
	return fmt.Sprintf("%s:{%s}:courses", s.prefix, userID)
}

func (s *RedisStore) Get(ctx context.Context, courseID, userID string) (Record, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(courseID, userID)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("get progress: %w", err)
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}

	completed, err := s.client.HGetAll(ctx, s.completedKey(courseID, userID)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("get completed lessons: %w", err)
	}

	rec := Record{
		CourseID:      courseID,
		UserID:        userID,
		Completed:     make(map[string]time.Time, len(completed)),
		CurrentLesson: fields["current_lesson"],
		StartedAt:     parseNanos(fields["started_at"]),
		LastWatched:   parseNanos(fields["last_watched"]),
	}
	for lessonID, at := range completed {
		rec.Completed[lessonID] = parseNanos(at)
	}
	return rec, true, nil
}

func (s *RedisStore) Complete(ctx context.Context, courseID, userID, lessonID string, at time.Time) (bool, error) {
	ts := formatNanos(at)
	pipe := s.client.TxPipeline()
	s.touch(ctx, pipe, courseID, userID, lessonID, ts)
	added := pipe.HSetNX(ctx, s.completedKey(courseID, userID), lessonID, ts)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("complete lesson: %w", err)
	}
	return added.Val(), nil
}

func (s *RedisStore) Touch(ctx context.Context, courseID, userID, lessonID string, at time.Time) error {
	pipe := s.client.TxPipeline()
	s.touch(ctx, pipe, courseID, userID, lessonID, formatNanos(at))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch progress: %w", err)
	}
	return nil
}

func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, courseID, userID, lessonID, ts string) {
	key := s.recordKey(courseID, userID)
	pipe.HSetNX(ctx, key, "started_at", ts)
	pipe.HSet(ctx, key, "current_lesson", lessonID, "last_watched", ts)
	pipe.SAdd(ctx, s.coursesKey(userID), courseID)
}

func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	courseIDs, err := s.client.SMembers(ctx, s.coursesKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list user courses: %w", err)
	}

	records := make([]Record, 0, len(courseIDs))
	for _, courseID := range courseIDs {
		rec, ok, err := s.Get(ctx, courseID, userID)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, courseID, userID string) error {
	pipe := s.client.TxPipeline()
	deleted := pipe.Del(ctx, s.recordKey(courseID, userID), s.completedKey(courseID, userID))
	pipe.SRem(ctx, s.coursesKey(userID), courseID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	if deleted.Val() == 0 {
		return fmt.Errorf("delete progress %s/%s: %w", courseID, userID, ErrProgressNotFound)
	}
	return nil
}

func formatNanos(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseNanos(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
