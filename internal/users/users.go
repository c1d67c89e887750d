// Package users holds learner and instructor accounts and the admin
// analytics computed over them.
package users

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-classroom/internal/course"
)

// ErrUserNotFound is returned when a user id does not exist.
var ErrUserNotFound = errors.New("user not found")

// Role is what a user can do on the platform.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// User is a platform account.
type User struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name" json:"name"`
	Email           string   `yaml:"email" json:"email"`
	Avatar          string   `yaml:"avatar" json:"avatar,omitempty"`
	Role            Role     `yaml:"role" json:"role"`
	EnrolledCourses []string `yaml:"enrolled_courses" json:"enrolled_courses,omitempty"`
}

// Patch carries a partial user update. Nil fields are left unchanged.
type Patch struct {
	Name            *string  `json:"name"`
	Email           *string  `json:"email"`
	Avatar          *string  `json:"avatar"`
	Role            *Role    `json:"role"`
	EnrolledCourses []string `json:"enrolled_courses"`
}

// MemoryStore is an in-memory user store that keeps insertion order.
type MemoryStore struct {
	users []User
	mu    sync.RWMutex
}

// NewMemoryStore creates a store seeded with users.
func NewMemoryStore(seed ...User) *MemoryStore {
	return &MemoryStore{users: slices.Clone(seed)}
}

// List returns all users in insertion order.
func (s *MemoryStore) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.users)
}

// Get returns a user by id.
func (s *MemoryStore) Get(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(id)
	if i < 0 {
		return User{}, fmt.Errorf("get user %s: %w", id, ErrUserNotFound)
	}
	return s.users[i], nil
}

// Create adds a user. An empty id is replaced by a generated one and an
// empty role defaults to student.
func (s *MemoryStore) Create(u User) (User, error) {
	if err := validate(u); err != nil {
		return User{}, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleStudent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(u.ID) >= 0 {
		return User{}, fmt.Errorf("user %s already exists", u.ID)
	}
	s.users = append(s.users, u)
	return u, nil
}

// Update applies a patch to an existing user.
func (s *MemoryStore) Update(id string, p Patch) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return User{}, fmt.Errorf("update user %s: %w", id, ErrUserNotFound)
	}
	u := s.users[i]
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.EnrolledCourses != nil {
		u.EnrolledCourses = p.EnrolledCourses
	}
	if err := validate(u); err != nil {
		return User{}, err
	}
	s.users[i] = u
	return u, nil
}

// Delete removes a user.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("delete user %s: %w", id, ErrUserNotFound)
	}
	s.users = slices.Delete(s.users, i, i+1)
	return nil
}

// Enroll adds courseID to the user's enrolled courses. Enrolling twice is a
// no-op.
func (s *MemoryStore) Enroll(userID, courseID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(userID)
	if i < 0 {
		return User{}, fmt.Errorf("enroll user %s: %w", userID, ErrUserNotFound)
	}
	if !slices.Contains(s.users[i].EnrolledCourses, courseID) {
		s.users[i].EnrolledCourses = append(slices.Clone(s.users[i].EnrolledCourses), courseID)
	}
	return s.users[i], nil
}

// index must be called with the lock held.
func (s *MemoryStore) index(id string) int {
	return slices.IndexFunc(s.users, func(u User) bool { return u.ID == id })
}

func validate(u User) error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("user name is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fmt.Errorf("invalid email %q", u.Email)
	}
	switch u.Role {
	case "", RoleStudent, RoleInstructor, RoleAdmin:
		return nil
	default:
		return fmt.Errorf("invalid role %q", u.Role)
	}
}

// LoadFile reads a YAML list of seed users.
func LoadFile(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}
	var seed []User
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing users file: %w", err)
	}
	for _, u := range seed {
		if err := validate(u); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	return seed, nil
}

// Analytics is the admin dashboard summary.
type Analytics struct {
	TotalCourses     int     `json:"total_courses"`
	TotalUsers       int     `json:"total_users"`
	TotalStudents    int     `json:"total_students"`
	TotalInstructors int     `json:"total_instructors"`
	TotalEnrollments int     `json:"total_enrollments"`
	AverageRating    float64 `json:"average_rating"`
	TotalRevenue     float64 `json:"total_revenue"`
}

// ComputeAnalytics summarises courses and users. Revenue is price times
// student count summed over courses; the average rating of an empty catalog
// is 0.
func ComputeAnalytics(courses []course.Course, users []User) Analytics {
	a := Analytics{
		TotalCourses: len(courses),
		TotalUsers:   len(users),
	}
	for _, u := range users {
		switch u.Role {
		case RoleStudent:
			a.TotalStudents++
		case RoleInstructor:
			a.TotalInstructors++
		}
		a.TotalEnrollments += len(u.EnrolledCourses)
	}

	var ratings float64
	for _, c := range courses {
		ratings += c.Rating
		a.TotalRevenue += c.Price * float64(c.StudentsCount)
	}
	if len(courses) > 0 {
		a.AverageRating = ratings / float64(len(courses))
	}
	return a
}
