package course

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed course.schema.json
var courseSchema string

// Loader loads course documents from the filesystem. Each YAML file holds one
// course and is validated against the course schema before decoding.
type Loader struct {
	rootDir string
	schema  *gojsonschema.Schema
	courses map[string]Course
	order   []string
	mu      sync.RWMutex
}

// NewLoader creates a loader and loads every course under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(courseSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling course schema: %w", err)
	}

	l := &Loader{
		rootDir: rootDir,
		schema:  schema,
		courses: make(map[string]Course),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading courses: %w", err)
	}

	slog.Info("course catalog loaded", "courses", len(l.courses), "path", rootDir)
	return l, nil
}

// GetCourse returns a loaded course by ID.
func (l *Loader) GetCourse(id string) (Course, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.courses[id]
	return c, ok
}

// AllCourses returns the loaded courses in file order.
func (l *Loader) AllCourses() []Course {
	l.mu.RLock()
	defer l.mu.RUnlock()
	courses := make([]Course, 0, len(l.order))
	for _, id := range l.order {
		courses = append(courses, l.courses[id])
	}
	return courses
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadCourse(path)
		}
		return nil
	})
}

func (l *Loader) loadCourse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := l.validate(data); err != nil {
		slog.Warn("skipping invalid course document", "path", path, "error", err)
		return nil
	}

	var c Course
	if err := yaml.Unmarshal(data, &c); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}
	c.Normalize()

	l.mu.Lock()
	if _, dup := l.courses[c.ID]; !dup {
		l.order = append(l.order, c.ID)
	} else {
		slog.Warn("duplicate course id, later file wins", "course_id", c.ID, "path", path)
	}
	l.courses[c.ID] = c
	l.mu.Unlock()

	return nil
}

// validate checks a raw YAML document against the course schema.
func (l *Loader) validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("empty document")
	}

	result, err := l.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema violations: %s", strings.Join(msgs, "; "))
	}
	return nil
}
