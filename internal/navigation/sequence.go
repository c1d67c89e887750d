// Package navigation orders a course's lessons into a single sequence and
// tracks a viewer's position in it.
package navigation

import "github.com/p-n-ai/pai-classroom/internal/course"

// Flatten returns every lesson of the course, unit by unit, in storage order.
// Order fields are not consulted.
func Flatten(c course.Course) []course.Lesson {
	lessons := make([]course.Lesson, 0, c.LessonCount())
	for _, u := range c.Units {
		lessons = append(lessons, u.Lessons...)
	}
	return lessons
}

// IndexOf returns the position of lessonID in the flattened sequence, or -1.
func IndexOf(c course.Course, lessonID string) int {
	i := 0
	for _, u := range c.Units {
		for _, l := range u.Lessons {
			if l.ID == lessonID {
				return i
			}
			i++
		}
	}
	return -1
}

// Next returns the lesson after currentID. It reports false at the end of the
// course or when currentID is not part of it.
func Next(c course.Course, currentID string) (course.Lesson, bool) {
	return step(c, currentID, 1)
}

// Previous returns the lesson before currentID. It reports false at the start
// of the course or when currentID is not part of it.
func Previous(c course.Course, currentID string) (course.Lesson, bool) {
	return step(c, currentID, -1)
}

// Position is a one-based "lesson i of n" marker.
type Position struct {
	Index int `json:"index"`
	Total int `json:"total"`
}

// PositionOf returns where lessonID sits in the course.
func PositionOf(c course.Course, lessonID string) (Position, bool) {
	i := IndexOf(c, lessonID)
	if i < 0 {
		return Position{}, false
	}
	return Position{Index: i + 1, Total: c.LessonCount()}, true
}

func step(c course.Course, currentID string, delta int) (course.Lesson, bool) {
	lessons := Flatten(c)
	i := -1
	for j, l := range lessons {
		if l.ID == currentID {
			i = j
			break
		}
	}
	if i < 0 {
		return course.Lesson{}, false
	}
	j := i + delta
	if j < 0 || j >= len(lessons) {
		return course.Lesson{}, false
	}
	return lessons[j], true
}
