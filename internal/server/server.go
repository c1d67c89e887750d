// Package server exposes the learning platform over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/learning"
	"github.com/p-n-ai/pai-classroom/internal/platform/metrics"
	"github.com/p-n-ai/pai-classroom/internal/progress"
	"github.com/p-n-ai/pai-classroom/internal/users"
)

const readyTimeout = 3 * time.Second

// Checker is a dependency reported by /readyz.
type Checker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// RateLimit configures the per-client token bucket on /api routes.
// RPS <= 0 disables limiting.
type RateLimit struct {
	RPS   float64
	Burst int
}

// Config holds the server's dependencies.
type Config struct {
	Catalog   *course.MemoryCatalog
	Users     *users.MemoryStore
	Progress  *progress.Engine
	Learning  *learning.Service
	WebSocket http.Handler // optional, mounted at /ws
	Metrics   *metrics.Metrics
	Checkers  []Checker
	RateLimit RateLimit
	Now       func() time.Time
}

// Server routes API requests to the learning services.
type Server struct {
	catalog   *course.MemoryCatalog
	users     *users.MemoryStore
	progress  *progress.Engine
	learning  *learning.Service
	websocket http.Handler
	metrics   *metrics.Metrics
	checkers  []Checker
	limiter   *clientLimiter
	now       func() time.Time
}

// New creates a server.
func New(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		catalog:   cfg.Catalog,
		users:     cfg.Users,
		progress:  cfg.Progress,
		learning:  cfg.Learning,
		websocket: cfg.WebSocket,
		metrics:   m,
		checkers:  cfg.Checkers,
		now:       now,
	}
	if cfg.RateLimit.RPS > 0 {
		s.limiter = newClientLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, now)
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.routes()
	if s.limiter != nil {
		h = s.rateLimit(h)
	}
	return s.metrics.Middleware(h)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", s.metrics.Handler())
	if s.websocket != nil {
		mux.Handle("GET /ws", s.websocket)
	}

	mux.HandleFunc("GET /api/courses", s.handleListCourses)
	mux.HandleFunc("POST /api/courses", s.handleCreateCourse)
	mux.HandleFunc("GET /api/courses/{id}", s.handleGetCourse)
	mux.HandleFunc("PUT /api/courses/{id}", s.handleUpdateCourse)
	mux.HandleFunc("DELETE /api/courses/{id}", s.handleDeleteCourse)
	mux.HandleFunc("GET /api/courses/{id}/lessons", s.handleListLessons)
	mux.HandleFunc("GET /api/courses/{id}/lessons/{lessonID}/next", s.handleNextLesson)
	mux.HandleFunc("GET /api/courses/{id}/lessons/{lessonID}/previous", s.handlePreviousLesson)

	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)
	mux.HandleFunc("PUT /api/users/{id}", s.handleUpdateUser)
	mux.HandleFunc("DELETE /api/users/{id}", s.handleDeleteUser)
	mux.HandleFunc("POST /api/users/{id}/enrollments", s.handleEnroll)
	mux.HandleFunc("GET /api/analytics", s.handleAnalytics)

	mux.HandleFunc("GET /api/progress/{userID}", s.handleUserProgress)
	mux.HandleFunc("GET /api/progress/{userID}/stats", s.handleUserStats)
	mux.HandleFunc("GET /api/progress/{userID}/{courseID}", s.handleCourseProgress)
	mux.HandleFunc("POST /api/progress/{userID}/{courseID}/complete", s.handleMarkComplete)
	mux.HandleFunc("DELETE /api/progress/{userID}/{courseID}", s.handleResetProgress)
	mux.HandleFunc("GET /api/achievements/{userID}/{courseID}", s.handleAchievements)
	mux.HandleFunc("GET /api/dashboard/{userID}/{courseID}", s.handleDashboard)

	mux.HandleFunc("POST /api/sessions/{userID}", s.handleOpenSession)
	mux.HandleFunc("GET /api/sessions/{userID}", s.handleCurrentSession)
	mux.HandleFunc("DELETE /api/sessions/{userID}", s.handleCloseSession)
	mux.HandleFunc("POST /api/sessions/{userID}/position", s.handleVideoProgress)
	mux.HandleFunc("POST /api/sessions/{userID}/complete", s.handleVideoComplete)
	mux.HandleFunc("POST /api/sessions/{userID}/stay", s.handleSessionStay)
	mux.HandleFunc("POST /api/sessions/{userID}/next", s.handleSessionNext)
	mux.HandleFunc("POST /api/sessions/{userID}/previous", s.handleSessionPrevious)
	mux.HandleFunc("POST /api/sessions/{userID}/select", s.handleSessionSelect)
	mux.HandleFunc("POST /api/sessions/{userID}/notes", s.handleSessionNote)

	mux.HandleFunc("GET /api/notes/{lessonID}", s.handleListNotes)
	mux.HandleFunc("GET /api/notes/{lessonID}/timeline", s.handleNoteTimeline)
	mux.HandleFunc("GET /api/notes/{lessonID}/export", s.handleExportNotes)
	mux.HandleFunc("POST /api/notes", s.handleAddNote)
	mux.HandleFunc("DELETE /api/notes/{id}", s.handleDeleteNote)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.checkers))
	for _, c := range s.checkers {
		if err := c.HealthCheck(ctx); err != nil {
			checks[c.Name()] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name()] = "ok"
	}

	body := map[string]any{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "not ready"
	}
	writeJSON(w, status, body)
}
