// Package server exposes the pipeline over HTTP: project CRUD, script
// analysis, generation with task progress polling. It is a thin surface;
// all real control flow lives in the pipeline package.
package server

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ryanfish1/mindvideo/config"
	"github.com/ryanfish1/mindvideo/storyboard"
	"github.com/ryanfish1/mindvideo/synthesis"
	"github.com/ryanfish1/mindvideo/types"
)

// Generator runs one pipeline. Satisfied by *pipeline.Runner.
type Generator interface {
	Run(ctx context.Context, scenes []types.Scene, voice synthesis.VoiceParams) (*types.PipelineRun, error)
}

// RunnerFactory builds a Generator wired to a progress callback. A fresh
// runner per generation keeps concurrent tasks' progress streams apart.
type RunnerFactory func(onProgress func(types.Progress)) Generator

// Analyzer splits a raw script into a storyboard.
type Analyzer interface {
	Analyze(ctx context.Context, script string) (*storyboard.Storyboard, error)
}

type Server struct {
	cfg      *config.Config
	store    *store
	analyzer Analyzer
	runners  RunnerFactory
}

func New(cfg *config.Config, analyzer Analyzer, runners RunnerFactory) *Server {
	return &Server{
		cfg:      cfg,
		store:    newStore(),
		analyzer: analyzer,
		runners:  runners,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := r.Group("/api")
	{
		api.POST("/projects", s.createProject)
		api.GET("/projects", s.listProjects)
		api.GET("/projects/:id", s.getProject)
		api.DELETE("/projects/:id", s.deleteProject)
		api.POST("/projects/:id/analyze", s.analyzeScript)
		api.POST("/projects/:id/generate", s.generate)
		api.GET("/projects/:id/tasks/:task_id", s.taskProgress)
	}
	return r
}

type createProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Script      string `json:"script"`
}

func (s *Server) createProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := s.store.createProject(req.Name, req.Description, req.Script)
	c.JSON(http.StatusOK, p)
}

func (s *Server) listProjects(c *gin.Context) {
	projects := s.store.listProjects()
	c.JSON(http.StatusOK, gin.H{"projects": projects, "total": len(projects)})
}

func (s *Server) getProject(c *gin.Context) {
	p, ok := s.store.projectSnapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProject(c *gin.Context) {
	if !s.store.deleteProject(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "project deleted"})
}

type analyzeRequest struct {
	Script string `json:"script" binding:"required"`
}

func (s *Server) analyzeScript(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.store.projectSnapshot(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sb, err := s.analyzer.Analyze(c.Request.Context(), req.Script)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "script analysis failed: " + err.Error()})
		return
	}

	s.store.updateProject(id, func(p *Project) {
		p.Script = req.Script
		p.Storyboard = sb
	})
	c.JSON(http.StatusOK, sb)
}

type generateRequest struct {
	Voice *synthesis.VoiceParams `json:"voice"`
}

func (s *Server) generate(c *gin.Context) {
	p, ok := s.store.projectSnapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if p.Storyboard == nil || len(p.Storyboard.Scenes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project has no storyboard; analyze the script first"})
		return
	}

	// Body is optional; without one the default voice is used.
	var req generateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	voice := synthesis.DefaultVoice()
	if req.Voice != nil {
		voice = *req.Voice
	}
	// Reject bad parameters at the boundary, before a task exists.
	if err := voice.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := s.store.createTask(p.ID, len(p.Storyboard.Scenes))
	s.store.updateProject(p.ID, func(p *Project) { p.Status = StatusGenerating })

	scenes := append([]types.Scene(nil), p.Storyboard.Scenes...)
	go s.runGeneration(task.ID, p.ID, scenes, voice)

	c.JSON(http.StatusAccepted, task)
}

// runGeneration executes one pipeline run in the background, feeding
// progress events into the task record clients poll.
func (s *Server) runGeneration(taskID, projectID string, scenes []types.Scene, voice synthesis.VoiceParams) {
	onProgress := func(ev types.Progress) {
		s.store.updateTask(taskID, func(t *Task) {
			t.Stage = TaskRunning
			t.CurrentScene = ev.Scene
			t.Message = ev.Stage + ": " + ev.Message
			if ev.Total > 0 {
				t.Progress = float64(ev.Scene) / float64(ev.Total)
			}
		})
	}

	runner := s.runners(onProgress)
	run, err := runner.Run(context.Background(), scenes, voice)
	if err != nil {
		log.Printf("[server] generation for project %s failed: %v", projectID, err)
		s.store.updateTask(taskID, func(t *Task) {
			t.Stage = TaskFailed
			t.Error = err.Error()
		})
		s.store.updateProject(projectID, func(p *Project) { p.Status = StatusFailed })
		return
	}

	s.store.updateTask(taskID, func(t *Task) {
		t.Stage = TaskCompleted
		t.Progress = 1.0
		t.OutputFile = run.OutputFile
		t.Message = "done"
	})
	s.store.updateProject(projectID, func(p *Project) { p.Status = StatusCompleted })
}

func (s *Server) taskProgress(c *gin.Context) {
	task, ok := s.store.taskSnapshot(c.Param("task_id"))
	if !ok || task.ProjectID != c.Param("id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}
