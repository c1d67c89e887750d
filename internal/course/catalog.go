package course

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Patch carries a partial course update. Nil fields are left unchanged.
type Patch struct {
	Title         *string  `json:"title"`
	Description   *string  `json:"description"`
	Instructor    *string  `json:"instructor"`
	InstructorID  *string  `json:"instructor_id"`
	Thumbnail     *string  `json:"thumbnail"`
	Price         *float64 `json:"price"`
	OriginalPrice *float64 `json:"original_price"`
	Rating        *float64 `json:"rating"`
	StudentsCount *int     `json:"students_count"`
	Category      *string  `json:"category"`
	Level         *Level   `json:"level"`
	Tags          []string `json:"tags"`
	Units         []Unit   `json:"units"`
}

// MemoryCatalog is the in-memory admin course store.
type MemoryCatalog struct {
	courses map[string]Course
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryCatalog creates a catalog seeded with the given courses.
func NewMemoryCatalog(courses ...Course) *MemoryCatalog {
	c := &MemoryCatalog{
		courses: make(map[string]Course, len(courses)),
		now:     time.Now,
	}
	for _, course := range courses {
		course.Normalize()
		c.courses[course.ID] = course
	}
	return c
}

// GetCourse returns a course by ID.
func (c *MemoryCatalog) GetCourse(id string) (Course, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	course, ok := c.courses[id]
	return course, ok
}

// List returns all courses ordered by title using English collation.
func (c *MemoryCatalog) List() []Course {
	c.mu.RLock()
	courses := make([]Course, 0, len(c.courses))
	for _, course := range c.courses {
		courses = append(courses, course)
	}
	c.mu.RUnlock()

	col := collate.New(language.English, collate.IgnoreCase)
	slices.SortStableFunc(courses, func(a, b Course) int {
		if r := col.CompareString(a.Title, b.Title); r != 0 {
			return r
		}
		return strings.Compare(a.ID, b.ID)
	})
	return courses
}

// Create adds a new course. An empty ID is replaced by a generated one.
func (c *MemoryCatalog) Create(course Course) (Course, error) {
	if strings.TrimSpace(course.Title) == "" {
		return Course{}, fmt.Errorf("course title is required")
	}
	if course.ID == "" {
		course.ID = uuid.NewString()
	}

	now := c.now()
	course.CreatedAt = now
	course.UpdatedAt = now
	course.Normalize()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.courses[course.ID]; exists {
		return Course{}, fmt.Errorf("course %s already exists", course.ID)
	}
	c.courses[course.ID] = course
	return course, nil
}

// Update applies a patch to an existing course.
func (c *MemoryCatalog) Update(id string, patch Patch) (Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	course, ok := c.courses[id]
	if !ok {
		return Course{}, fmt.Errorf("update course %s: %w", id, ErrCourseNotFound)
	}

	applyPatch(&course, patch)
	course.UpdatedAt = c.now()
	course.Normalize()

	c.courses[id] = course
	return course, nil
}

// Delete removes a course.
func (c *MemoryCatalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.courses[id]; !ok {
		return fmt.Errorf("delete course %s: %w", id, ErrCourseNotFound)
	}
	delete(c.courses, id)
	return nil
}

func applyPatch(course *Course, p Patch) {
	setIf(&course.Title, p.Title)
	setIf(&course.Description, p.Description)
	setIf(&course.Instructor, p.Instructor)
	setIf(&course.InstructorID, p.InstructorID)
	setIf(&course.Thumbnail, p.Thumbnail)
	setIf(&course.Price, p.Price)
	setIf(&course.OriginalPrice, p.OriginalPrice)
	setIf(&course.Rating, p.Rating)
	setIf(&course.StudentsCount, p.StudentsCount)
	setIf(&course.Category, p.Category)
	setIf(&course.Level, p.Level)
	if p.Tags != nil {
		course.Tags = p.Tags
	}
	if p.Units != nil {
		course.Units = p.Units
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
