package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-classroom/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. The completed set is the
// completed_lessons table; its primary key keeps it duplicate-free.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, courseID, userID string) (Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rec := Record{CourseID: courseID, UserID: userID, Completed: make(map[string]time.Time)}
	err := s.pool.QueryRow(ctx,
		`SELECT current_lesson, started_at, last_watched
		 FROM course_progress
		 WHERE course_id = $1 AND user_id = $2`,
		courseID, userID,
	).Scan(&rec.CurrentLesson, &rec.StartedAt, &rec.LastWatched)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get progress: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT lesson_id, completed_at
		 FROM completed_lessons
		 WHERE course_id = $1 AND user_id = $2`,
		courseID, userID,
	)
	if err != nil {
		return Record{}, false, fmt.Errorf("query completed lessons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lessonID string
		var at time.Time
		if err := rows.Scan(&lessonID, &at); err != nil {
			return Record{}, false, fmt.Errorf("scan completed lesson: %w", err)
		}
		rec.Completed[lessonID] = at
	}
	if err := rows.Err(); err != nil {
		return Record{}, false, fmt.Errorf("iterate completed lessons: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresStore) Complete(ctx context.Context, courseID, userID, lessonID string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var added bool
	err := database.WithinTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := upsertProgress(ctx, tx, courseID, userID, lessonID, at); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO completed_lessons (course_id, user_id, lesson_id, completed_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT DO NOTHING`,
			courseID, userID, lessonID, at,
		)
		if err != nil {
			return fmt.Errorf("insert completed lesson: %w", err)
		}
		added = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("complete lesson: %w", err)
	}
	return added, nil
}

func (s *PostgresStore) Touch(ctx context.Context, courseID, userID, lessonID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := upsertProgress(ctx, s.pool, courseID, userID, lessonID, at); err != nil {
		return fmt.Errorf("touch progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT course_id, current_lesson, started_at, last_watched
		 FROM course_progress
		 WHERE user_id = $1
		 ORDER BY last_watched DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}

	var records []Record
	index := make(map[string]int)
	for rows.Next() {
		rec := Record{UserID: userID, Completed: make(map[string]time.Time)}
		if err := rows.Scan(&rec.CourseID, &rec.CurrentLesson, &rec.StartedAt, &rec.LastWatched); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		index[rec.CourseID] = len(records)
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT course_id, lesson_id, completed_at
		 FROM completed_lessons
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query completed lessons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var courseID, lessonID string
		var at time.Time
		if err := rows.Scan(&courseID, &lessonID, &at); err != nil {
			return nil, fmt.Errorf("scan completed lesson: %w", err)
		}
		if i, ok := index[courseID]; ok {
			records[i].Completed[lessonID] = at
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed lessons: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Delete(ctx context.Context, courseID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM course_progress WHERE course_id = $1 AND user_id = $2`,
		courseID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete progress %s/%s: %w", courseID, userID, ErrProgressNotFound)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertProgress(ctx context.Context, db execer, courseID, userID, lessonID string, at time.Time) error {
	_, err := db.Exec(ctx,
		`INSERT INTO course_progress (course_id, user_id, current_lesson, started_at, last_watched)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (course_id, user_id)
		 DO UPDATE SET current_lesson = EXCLUDED.current_lesson, last_watched = EXCLUDED.last_watched`,
		courseID, userID, lessonID, at,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}
