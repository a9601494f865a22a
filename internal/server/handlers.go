package server

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clawmate/clawmate/internal/llm"
	"github.com/clawmate/clawmate/internal/security"
	"github.com/clawmate/clawmate/internal/version"
	"github.com/clawmate/clawmate/pkg/models"
)

// commandRequest is the wire form of an execution request. Timeout is
// expressed in seconds to keep JSON payloads plain.
type commandRequest struct {
	Command  string            `json:"command" binding:"required"`
	Args     []string          `json:"args"`
	Cwd      string            `json:"cwd"`
	Env      map[string]string `json:"env"`
	Timeout  int               `json:"timeout"`
	PTY      bool              `json:"pty"`
	Elevated bool              `json:"elevated"`
	Sandbox  bool              `json:"sandbox"`
}

func (r commandRequest) toExecution() models.ExecutionRequest {
	return models.ExecutionRequest{
		Command:  r.Command,
		Args:     r.Args,
		Cwd:      r.Cwd,
		Env:      r.Env,
		Timeout:  time.Duration(r.Timeout) * time.Second,
		PTY:      r.PTY,
		Elevated: r.Elevated,
		Sandbox:  r.Sandbox,
	}
}

// taskRequest is the wire form of an agent task.
type taskRequest struct {
	ID       string   `json:"id"`
	Prompt   string   `json:"prompt"`
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	Model    string   `json:"model"`
	Timeout  int      `json:"timeout"`
	Sandbox  bool     `json:"sandbox"`
	Elevated bool     `json:"elevated"`
}

func (r taskRequest) toTask() models.Task {
	return models.Task{
		ID:       r.ID,
		Prompt:   r.Prompt,
		Command:  r.Command,
		Args:     r.Args,
		Model:    r.Model,
		Timeout:  time.Duration(r.Timeout) * time.Second,
		Sandbox:  r.Sandbox,
		Elevated: r.Elevated,
	}
}

func (s *Server) handleExecuteCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	execReq := req.toExecution()
	verdict := s.policy.Vet(execReq.CommandLine(), req.Elevated)
	if !verdict.Allowed() {
		c.JSON(http.StatusForbidden, verdict)
		return
	}

	result := s.executor.Execute(c.Request.Context(), execReq)
	c.JSON(http.StatusOK, gin.H{
		"command":   result.Command,
		"exit_code": result.ExitCode,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"duration":  result.Duration.Seconds(),
		"pid":       result.PID,
	})
}

func (s *Server) handleCheckCommand(c *gin.Context) {
	command := c.Param("command")
	verdict := s.policy.Vet(command, false)
	c.JSON(http.StatusOK, gin.H{
		"command":  command,
		"decision": verdict.Decision,
		"reason":   verdict.Reason,
		"elevated": security.IsElevated(command),
	})
}

func (s *Server) handleSubmitTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := req.toTask()
	if !task.IsCommand() && task.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task needs a command or a prompt"})
		return
	}
	if task.IsCommand() {
		execReq := models.ExecutionRequest{Command: task.Command, Args: task.Args}
		if verdict := s.policy.Vet(execReq.CommandLine(), task.Elevated); !verdict.Allowed() {
			c.JSON(http.StatusForbidden, verdict)
			return
		}
	}

	id, err := s.orch.Submit(task)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id})
}

func (s *Server) handleGetTask(c *gin.Context) {
	id := c.Param("id")
	state, err := s.orch.State(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"task_id": id, "state": state}
	if state.Terminal() {
		if result, ok := s.orch.Results().Get(id); ok {
			resp["result"] = result
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCancelTask(c *gin.Context) {
	id := c.Param("id")
	if err := s.orch.Cancel(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "cancelling": true})
}

func (s *Server) handleSwarm(c *gin.Context) {
	var reqs []taskRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(reqs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty swarm"})
		return
	}

	tasks := make([]models.Task, 0, len(reqs))
	for _, r := range reqs {
		tasks = append(tasks, r.toTask())
	}

	results, err := s.orch.RunSwarm(c.Request.Context(), tasks)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "results": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleAgentStatus(c *gin.Context) {
	status := s.orch.Status()
	c.JSON(http.StatusOK, gin.H{
		"capacity": s.orch.Capacity(),
		"status":   status,
	})
}

func (s *Server) handleListSkills(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"skills": s.registry.List()})
}

func (s *Server) handleListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.registry.Tools()})
}

func (s *Server) handleGetSkill(c *gin.Context) {
	name := c.Param("name")
	skill, ok := s.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "skill not found: " + name})
		return
	}
	c.JSON(http.StatusOK, skill)
}

func (s *Server) handleRunSkill(c *gin.Context) {
	name := c.Param("name")
	execReq, err := s.registry.Command(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if verdict := s.policy.Vet(execReq.CommandLine(), false); !verdict.Allowed() {
		c.JSON(http.StatusForbidden, verdict)
		return
	}

	result := s.executor.Execute(c.Request.Context(), execReq)
	c.JSON(http.StatusOK, gin.H{
		"skill":     name,
		"exit_code": result.ExitCode,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"duration":  result.Duration.Seconds(),
	})
}

func (s *Server) handleReloadSkills(c *gin.Context) {
	if err := s.registry.Load(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.registry.Status())
}

// chatRequest carries a chat exchange.
type chatRequest struct {
	Messages []llm.Message `json:"messages" binding:"required"`
	Model    string        `json:"model"`
}

func (s *Server) handleChatSend(c *gin.Context) {
	if s.llm == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": llm.ErrNoBackend.Error()})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}
	reply, err := s.llm.Chat(c.Request.Context(), req.Messages, model)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": reply, "model": model, "done": true})
}

func (s *Server) handleHealth(c *gin.Context) {
	llmConnected := false
	if s.llm != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		llmConnected = s.llm.Ping(ctx) == nil
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"version":        version.Get(),
		"llm_connected":  llmConnected,
		"skills_loaded":  len(s.registry.List()),
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleSystemInfo(c *gin.Context) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		if runtime.GOOS == "windows" {
			shell = "powershell"
		} else {
			shell = "/bin/sh"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"platform":   runtime.GOOS,
		"arch":       runtime.GOARCH,
		"shell":      shell,
		"go_version": strings.TrimPrefix(runtime.Version(), "go"),
		"cpu_count":  runtime.NumCPU(),
	})
}
