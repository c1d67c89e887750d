// Package course holds the course catalog: the Course → Unit → Lesson tree,
// loading course documents from disk, and the admin catalog store.
package course

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrCourseNotFound is returned when a course id is not in the catalog.
	ErrCourseNotFound = errors.New("course not found")
	// ErrLessonNotFound is returned when a lesson id is not part of a course.
	ErrLessonNotFound = errors.New("lesson not found")
)

// Level is the difficulty label shown on a course card.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

// ResourceType classifies a lesson attachment.
type ResourceType string

const (
	ResourcePDF  ResourceType = "pdf"
	ResourceLink ResourceType = "link"
	ResourceCode ResourceType = "code"
)

// Course is a purchasable content unit composed of ordered units.
type Course struct {
	ID               string    `yaml:"id" json:"id"`
	Title            string    `yaml:"title" json:"title"`
	Description      string    `yaml:"description" json:"description"`
	Instructor       string    `yaml:"instructor" json:"instructor"`
	InstructorID     string    `yaml:"instructor_id" json:"instructor_id"`
	InstructorAvatar string    `yaml:"instructor_avatar" json:"instructor_avatar,omitempty"`
	Thumbnail        string    `yaml:"thumbnail" json:"thumbnail,omitempty"`
	Price            float64   `yaml:"price" json:"price"`
	OriginalPrice    float64   `yaml:"original_price" json:"original_price,omitempty"`
	Rating           float64   `yaml:"rating" json:"rating"`
	StudentsCount    int       `yaml:"students_count" json:"students_count"`
	Duration         string    `yaml:"duration" json:"duration"`
	LessonsCount     int       `yaml:"lessons_count" json:"lessons_count"`
	Category         string    `yaml:"category" json:"category"`
	Level            Level     `yaml:"level" json:"level"`
	Tags             []string  `yaml:"tags" json:"tags"`
	Units            []Unit    `yaml:"units" json:"units"`
	CreatedAt        time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt        time.Time `yaml:"updated_at" json:"updated_at"`
}

// Unit is an ordered grouping of lessons within a course.
type Unit struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Order       int      `yaml:"order" json:"order"`
	Lessons     []Lesson `yaml:"lessons" json:"lessons"`
}

// Lesson is a single video and the unit of completion tracking.
type Lesson struct {
	ID          string     `yaml:"id" json:"id"`
	UnitID      string     `yaml:"unit_id" json:"unit_id"`
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description" json:"description"`
	VideoURL    string     `yaml:"video_url" json:"video_url"`
	Duration    string     `yaml:"duration" json:"duration"` // mm:ss
	Order       int        `yaml:"order" json:"order"`
	Transcript  string     `yaml:"transcript" json:"transcript,omitempty"`
	Resources   []Resource `yaml:"resources" json:"resources,omitempty"`
}

// Resource is a downloadable or linked attachment of a lesson.
type Resource struct {
	ID    string       `yaml:"id" json:"id"`
	Title string       `yaml:"title" json:"title"`
	Type  ResourceType `yaml:"type" json:"type"`
	URL   string       `yaml:"url" json:"url"`
}

// LessonCount returns the number of lessons across all units.
func (c Course) LessonCount() int {
	n := 0
	for _, u := range c.Units {
		n += len(u.Lessons)
	}
	return n
}

// FindLesson looks a lesson up by id and returns it with its owning unit.
func (c Course) FindLesson(lessonID string) (Lesson, Unit, bool) {
	for _, u := range c.Units {
		for _, l := range u.Lessons {
			if l.ID == lessonID {
				return l, u, true
			}
		}
	}
	return Lesson{}, Unit{}, false
}

// HasLesson reports whether lessonID belongs to the course.
func (c Course) HasLesson(lessonID string) bool {
	_, _, ok := c.FindLesson(lessonID)
	return ok
}

// TotalDuration sums lesson durations. Unparseable durations count as zero.
func (c Course) TotalDuration() time.Duration {
	var total time.Duration
	for _, u := range c.Units {
		for _, l := range u.Lessons {
			d, err := ParseDuration(l.Duration)
			if err != nil {
				continue
			}
			total += d
		}
	}
	return total
}

// Normalize fills the derived fields: lesson back-references to their unit,
// the lesson count and the human-readable duration.
func (c *Course) Normalize() {
	for i := range c.Units {
		for j := range c.Units[i].Lessons {
			c.Units[i].Lessons[j].UnitID = c.Units[i].ID
		}
	}
	c.LessonsCount = c.LessonCount()
	if total := c.TotalDuration(); total > 0 {
		c.Duration = FormatCourseDuration(total)
	}
}

// ParseDuration parses a lesson duration in "mm:ss" or "h:mm:ss" form.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q: want mm:ss or h:mm:ss", s)
	}

	values := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("invalid duration %q: field out of range", s)
		}
		values[i] = v
	}

	var total int
	for _, v := range values {
		total = total*60 + v
	}
	return time.Duration(total) * time.Second, nil
}

// FormatCourseDuration renders a total like "42h 15m", as shown on course cards.
func FormatCourseDuration(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	h, m := minutes/60, minutes%60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
