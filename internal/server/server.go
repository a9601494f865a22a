// Package server exposes the REST and WebSocket API for the assistant
// backend: command execution, agent task management, skills, chat, and
// system health.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/clawmate/clawmate/internal/executor"
	"github.com/clawmate/clawmate/internal/llm"
	"github.com/clawmate/clawmate/internal/orchestrator"
	"github.com/clawmate/clawmate/internal/security"
	"github.com/clawmate/clawmate/internal/skills"
)

// Options configures a Server.
type Options struct {
	Addr  string
	Debug bool
	// DefaultModel is used by chat endpoints without a model override.
	DefaultModel string
}

// Server wires the HTTP surface to the backend components.
type Server struct {
	orch     *orchestrator.Orchestrator
	executor *executor.Executor
	policy   *security.Policy
	registry *skills.Registry
	llm      llm.Client

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader

	defaultModel string
	startTime    time.Time
}

// New creates a Server. The llm client may be nil; chat endpoints then
// report the missing backend.
func New(opts Options, orch *orchestrator.Orchestrator, exec *executor.Executor, policy *security.Policy, registry *skills.Registry, client llm.Client) *Server {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s := &Server{
		orch:     orch,
		executor: exec,
		policy:   policy,
		registry: registry,
		llm:      client,
		engine:   engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		defaultModel: opts.DefaultModel,
		startTime:    time.Now(),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own deadlines
	}
	return s
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	{
		commands := api.Group("/commands")
		commands.POST("/execute", s.handleExecuteCommand)
		commands.GET("/check/:command", s.handleCheckCommand)

		agents := api.Group("/agents")
		agents.POST("/tasks", s.handleSubmitTask)
		agents.GET("/tasks/:id", s.handleGetTask)
		agents.DELETE("/tasks/:id", s.handleCancelTask)
		agents.POST("/swarm", s.handleSwarm)
		agents.GET("/status", s.handleAgentStatus)

		skillsGroup := api.Group("/skills")
		skillsGroup.GET("", s.handleListSkills)
		skillsGroup.GET("/tools", s.handleListTools)
		skillsGroup.GET("/:name", s.handleGetSkill)
		skillsGroup.POST("/:name/run", s.handleRunSkill)
		skillsGroup.POST("/reload", s.handleReloadSkills)

		chat := api.Group("/chat")
		chat.POST("/send", s.handleChatSend)

		system := api.Group("/system")
		system.GET("/health", s.handleHealth)
		system.GET("/info", s.handleSystemInfo)
	}

	ws := s.engine.Group("/ws")
	ws.GET("/chat", s.handleChatWS)
	ws.GET("/commands", s.handleCommandWS)
}

// Start runs the HTTP server until Stop is called or the listener fails.
func (s *Server) Start() error {
	log.Printf("[server] listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	log.Printf("[server] shutting down")
	return s.httpServer.Shutdown(ctx)
}
