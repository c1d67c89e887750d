package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/navigation"
	"github.com/p-n-ai/pai-classroom/internal/users"
)

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	search := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("search")))

	courses := make([]course.Course, 0)
	for _, c := range s.catalog.List() {
		if category != "" && !strings.EqualFold(c.Category, category) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		courses = append(courses, c)
	}
	writeData(w, http.StatusOK, courses)
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var c course.Course
	if err := decode(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.catalog.Create(c)
	if err != nil {
		writeError(w, r, badRequest("%v", err))
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := s.course(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	var p course.Patch
	if err := decode(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.catalog.Update(r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
}

func (s *Server) handleListLessons(w http.ResponseWriter, r *http.Request) {
	c, err := s.course(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, navigation.Flatten(c))
}

// neighbour is the response of the next/previous lookups. Lesson is nil at
// either end of the course.
type neighbour struct {
	Lesson   *course.Lesson      `json:"lesson"`
	Position navigation.Position `json:"position"`
}

func (s *Server) handleNextLesson(w http.ResponseWriter, r *http.Request) {
	s.serveNeighbour(w, r, navigation.Next)
}

func (s *Server) handlePreviousLesson(w http.ResponseWriter, r *http.Request) {
	s.serveNeighbour(w, r, navigation.Previous)
}

func (s *Server) serveNeighbour(w http.ResponseWriter, r *http.Request, move func(course.Course, string) (course.Lesson, bool)) {
	c, err := s.course(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	lessonID := r.PathValue("lessonID")
	pos, ok := navigation.PositionOf(c, lessonID)
	if !ok {
		writeError(w, r, course.ErrLessonNotFound)
		return
	}

	resp := neighbour{Position: pos}
	if l, ok := move(c, lessonID); ok {
		resp.Lesson = &l
		resp.Position, _ = navigation.PositionOf(c, l.ID)
	}
	writeData(w, http.StatusOK, resp)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := users.Role(r.URL.Query().Get("role"))
	list := make([]users.User, 0)
	for _, u := range s.users.List() {
		if role != "" && u.Role != role {
			continue
		}
		list = append(list, u)
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var u users.User
	if err := decode(w, r, &u); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.users.Create(u)
	if err != nil {
		writeError(w, r, badRequest("%v", err))
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var p users.Patch
	if err := decode(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if _, err := s.users.Get(id); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.Update(id, p)
	if err != nil {
		writeError(w, r, badRequest("%v", err))
		return
	}
	writeData(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Delete(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CourseID string `json:"course_id"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.course(req.CourseID); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.Enroll(r.PathValue("id"), req.CourseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, users.ComputeAnalytics(s.catalog.List(), s.users.List()))
}

func (s *Server) course(id string) (course.Course, error) {
	c, ok := s.catalog.GetCourse(id)
	if !ok {
		return course.Course{}, fmt.Errorf("course %s: %w", id, course.ErrCourseNotFound)
	}
	return c, nil
}
