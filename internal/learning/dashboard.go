package learning

import (
	"context"
	"fmt"

	"github.com/p-n-ai/pai-classroom/internal/achievement"
	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/navigation"
	"github.com/p-n-ai/pai-classroom/internal/progress"
)

// Dashboard is everything the course page renders for one learner.
type Dashboard struct {
	CourseID      string                  `json:"course_id"`
	CourseTitle   string                  `json:"course_title"`
	Progress      progress.Snapshot       `json:"progress"`
	Units         []progress.UnitProgress `json:"units"`
	Lessons       []progress.LessonStatus `json:"lessons"`
	Achievements  achievement.Report      `json:"achievements"`
	CurrentLesson *course.Lesson          `json:"current_lesson,omitempty"`
	Position      *navigation.Position    `json:"position,omitempty"`
}

// Dashboard assembles the course page for userID. The current lesson is the
// stored one, or the first lesson for a learner who has not started.
func (s *Service) Dashboard(ctx context.Context, userID, courseID string) (Dashboard, error) {
	c, ok := s.catalog.GetCourse(courseID)
	if !ok {
		return Dashboard{}, fmt.Errorf("dashboard for course %s: %w", courseID, course.ErrCourseNotFound)
	}

	snap, _, err := s.progress.CourseProgress(ctx, courseID, userID)
	if err != nil {
		return Dashboard{}, err
	}
	units, err := s.progress.UnitProgress(ctx, courseID, userID)
	if err != nil {
		return Dashboard{}, err
	}
	lessons, err := s.progress.LessonStates(ctx, courseID, userID)
	if err != nil {
		return Dashboard{}, err
	}
	report, err := s.Achievements(ctx, userID, courseID)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		CourseID:     c.ID,
		CourseTitle:  c.Title,
		Progress:     snap,
		Units:        units,
		Lessons:      lessons,
		Achievements: report,
	}

	currentID := snap.CurrentLesson
	if !c.HasLesson(currentID) {
		if all := navigation.Flatten(c); len(all) > 0 {
			currentID = all[0].ID
		}
	}
	if l, _, ok := c.FindLesson(currentID); ok {
		d.CurrentLesson = &l
		if pos, ok := navigation.PositionOf(c, l.ID); ok {
			d.Position = &pos
		}
	}
	return d, nil
}
