package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryanfish1/mindvideo/storyboard"
)

// Project statuses.
const (
	StatusDraft      = "draft"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Task stages surfaced to clients; per-scene stages come straight from
// pipeline progress events.
const (
	TaskQueued    = "queued"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

type Project struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Script      string                 `json:"script,omitempty"`
	Status      string                 `json:"status"`
	Storyboard  *storyboard.Storyboard `json:"storyboard,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

type Task struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Stage        string    `json:"stage"`
	Progress     float64   `json:"progress"`
	Message      string    `json:"message,omitempty"`
	CurrentScene int       `json:"current_scene"`
	TotalScenes  int       `json:"total_scenes"`
	OutputFile   string    `json:"output_file,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// store keeps projects and tasks in memory. Persistence is deliberately
// out of scope for the API surface; a restart loses drafts but never
// rendered output, which lives on disk.
//
// Everything leaving the store is a copy made under the lock. Background
// generation keeps mutating records through update*, so a handler must
// never serialize a live record. Storyboards are shared by pointer: they
// are replaced whole on analyze, never mutated in place.
type store struct {
	mu       sync.RWMutex
	projects map[string]*Project
	tasks    map[string]*Task
}

func newStore() *store {
	return &store{
		projects: make(map[string]*Project),
		tasks:    make(map[string]*Task),
	}
}

func (s *store) createProject(name, description, script string) Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	p := &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Script:      script,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.projects[p.ID] = p
	return *p
}

// projectSnapshot copies a project under the read lock so handlers never
// serialize a record mid-update.
func (s *store) projectSnapshot(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, false
	}
	return *p, true
}

func (s *store) listProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *store) deleteProject(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return false
	}
	delete(s.projects, id)
	return true
}

func (s *store) updateProject(id string, fn func(*Project)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return false
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return true
}

func (s *store) createTask(projectID string, totalScenes int) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	t := &Task{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Stage:       TaskQueued,
		TotalScenes: totalScenes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[t.ID] = t
	return *t
}

func (s *store) updateTask(id string, fn func(*Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	fn(t)
	t.UpdatedAt = time.Now().UTC()
	return true
}

func (s *store) taskSnapshot(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}
