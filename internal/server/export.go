package server

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/notes"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExportNotes downloads a lesson's notes as a workbook. course_id
// narrows the lesson lookup when lesson ids are not unique across courses.
func (s *Server) handleExportNotes(w http.ResponseWriter, r *http.Request) {
	lessonID := r.PathValue("lessonID")
	info, err := s.exportInfo(r.URL.Query().Get("course_id"), lessonID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := s.learning.Notes(r.Context(), lessonID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := notes.ExportXLSX(&buf, info, list); err != nil {
		writeError(w, r, err)
		return
	}

	name := info.FileName()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", name, url.PathEscape(name)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) exportInfo(courseID, lessonID string) (notes.ExportInfo, error) {
	candidates := s.catalog.List()
	if courseID != "" {
		c, err := s.course(courseID)
		if err != nil {
			return notes.ExportInfo{}, err
		}
		candidates = []course.Course{c}
	}
	for _, c := range candidates {
		if l, u, ok := c.FindLesson(lessonID); ok {
			return notes.ExportInfo{
				CourseTitle: c.Title,
				UnitTitle:   u.Title,
				LessonTitle: l.Title,
				ExportedAt:  s.now(),
			}, nil
		}
	}
	return notes.ExportInfo{}, fmt.Errorf("export notes for lesson %s: %w", lessonID, course.ErrLessonNotFound)
}
