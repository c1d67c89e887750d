package server

import (
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-classroom/internal/notes"
)

func (s *Server) handleUserProgress(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.progress.UserProgress(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snaps)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.progress.Stats(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

func (s *Server) handleCourseProgress(w http.ResponseWriter, r *http.Request) {
	snap, _, err := s.progress.CourseProgress(r.Context(), r.PathValue("courseID"), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

func (s *Server) handleMarkComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LessonID string `json:"lesson_id"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.LessonID == "" {
		writeError(w, r, badRequest("lesson_id is required"))
		return
	}

	res, err := s.learning.MarkComplete(r.Context(), r.PathValue("userID"), r.PathValue("courseID"), req.LessonID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	if err := s.progress.Reset(r.Context(), r.PathValue("courseID"), r.PathValue("userID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"course_id": r.PathValue("courseID"), "user_id": r.PathValue("userID")})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	report, err := s.learning.Achievements(r.Context(), r.PathValue("userID"), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.learning.Dashboard(r.Context(), r.PathValue("userID"), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CourseID string `json:"course_id"`
		LessonID string `json:"lesson_id"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CourseID == "" {
		writeError(w, r, badRequest("course_id is required"))
		return
	}
	view, err := s.learning.OpenLesson(r.Context(), r.PathValue("userID"), req.CourseID, req.LessonID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.learning.Current(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	s.learning.Close(r.PathValue("userID"))
	writeData(w, http.StatusOK, map[string]string{"user_id": r.PathValue("userID")})
}

func (s *Server) handleVideoProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds  int `json:"seconds"`
		Duration int `json:"duration"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Seconds < 0 {
		writeError(w, r, badRequest("seconds must not be negative"))
		return
	}
	if err := s.learning.VideoProgress(r.PathValue("userID"), req.Seconds, req.Duration); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"seconds": req.Seconds})
}

func (s *Server) handleVideoComplete(w http.ResponseWriter, r *http.Request) {
	res, err := s.learning.VideoComplete(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleSessionStay(w http.ResponseWriter, r *http.Request) {
	cancelled, err := s.learning.StayOnLesson(r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleSessionNext(w http.ResponseWriter, r *http.Request) {
	view, moved, err := s.learning.Next(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"moved": moved, "session": view})
}

func (s *Server) handleSessionPrevious(w http.ResponseWriter, r *http.Request) {
	view, moved, err := s.learning.Previous(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"moved": moved, "session": view})
}

func (s *Server) handleSessionSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LessonID string `json:"lesson_id"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.learning.Select(r.Context(), r.PathValue("userID"), req.LessonID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (s *Server) handleSessionNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, r, badRequest("content is required"))
		return
	}
	n, err := s.learning.AddNoteAtPosition(r.Context(), r.PathValue("userID"), req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, n)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	var (
		list []notes.Note
		err  error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		list, err = s.learning.UserNotes(r.Context(), userID, r.PathValue("lessonID"))
	} else {
		list, err = s.learning.Notes(r.Context(), r.PathValue("lessonID"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleNoteTimeline(w http.ResponseWriter, r *http.Request) {
	list, err := s.learning.Notes(r.Context(), r.PathValue("lessonID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, notes.Buckets(list))
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LessonID  string `json:"lesson_id"`
		UserID    string `json:"user_id"`
		Content   string `json:"content"`
		Timestamp int    `json:"timestamp"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	switch {
	case req.LessonID == "":
		writeError(w, r, badRequest("lesson_id is required"))
		return
	case strings.TrimSpace(req.Content) == "":
		writeError(w, r, badRequest("content is required"))
		return
	}

	n, err := s.learning.AddNote(r.Context(), notes.Note{
		LessonID:  req.LessonID,
		UserID:    req.UserID,
		Content:   req.Content,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, n)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.learning.DeleteNote(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
}
