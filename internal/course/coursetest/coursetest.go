// Package coursetest builds course fixtures for tests.
package coursetest

import (
	"fmt"

	"github.com/p-n-ai/pai-classroom/internal/course"
)

// Build returns a course with one unit per entry in unitSizes, each holding
// that many lessons. Lesson ids are "lesson-<unit>-<n>", all 10 minutes long.
func Build(id string, unitSizes ...int) course.Course {
	c := course.Course{
		ID:    id,
		Title: "Course " + id,
	}
	for u, size := range unitSizes {
		unit := course.Unit{
			ID:    fmt.Sprintf("unit-%d", u+1),
			Title: fmt.Sprintf("Unit %d", u+1),
			Order: u + 1,
		}
		for n := 0; n < size; n++ {
			unit.Lessons = append(unit.Lessons, course.Lesson{
				ID:       fmt.Sprintf("lesson-%d-%d", u+1, n+1),
				Title:    fmt.Sprintf("Lesson %d.%d", u+1, n+1),
				Duration: "10:00",
				Order:    n + 1,
			})
		}
		c.Units = append(c.Units, unit)
	}
	c.Normalize()
	return c
}

// Sample mirrors the demo catalog: three units with 3, 2 and 1 lessons.
func Sample() course.Course {
	return Build("1", 3, 2, 1)
}
