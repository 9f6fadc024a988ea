// Package api wires the REST routes and the WebSocket endpoint into one gin
// engine. Each REST group is independent of the WebSocket session state.
package api

import (
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voxden/voxd/internal/auth"
	"github.com/voxden/voxd/internal/cache"
	"github.com/voxden/voxd/internal/config"
	"github.com/voxden/voxd/internal/hub"
	"github.com/voxden/voxd/internal/inference"
	"github.com/voxden/voxd/internal/store"
	"github.com/voxden/voxd/internal/ws"
)

type Server struct {
	cfg    *config.Config
	store  *store.Store
	cache  *cache.Cache
	tokens *auth.Manager
	hub    *hub.Registry

	voice  inference.Voice
	vision inference.Vision
	brain  inference.Brain

	wsController *ws.Controller
	started      time.Time
}

func NewServer(
	cfg *config.Config,
	st *store.Store,
	c *cache.Cache,
	tokens *auth.Manager,
	registry *hub.Registry,
	voice inference.Voice,
	vision inference.Vision,
	brain inference.Brain,
	wsController *ws.Controller,
) *Server {
	return &Server{
		cfg:          cfg,
		store:        st,
		cache:        c,
		tokens:       tokens,
		hub:          registry,
		voice:        voice,
		vision:       vision,
		brain:        brain,
		wsController: wsController,
		started:      time.Now().UTC(),
	}
}

func clientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	if s.cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if s.cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(s.cfg.Secret))
	r.Use(sessions.Sessions("VoxdSession", store))
	r.Use(clientTokenMiddleware())

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/alive", s.handleAlive)

	r.GET("/ws/connect", s.wsController.HandleConnect)

	v1 := r.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/refresh", s.handleRefresh)
		authGroup.GET("/me", s.requireAuth(), s.handleMe)
		authGroup.POST("/logout", s.requireAuth(), s.handleLogout)
	}

	voice := v1.Group("/voice", s.requireAuth())
	{
		voice.POST("/stt", s.handleSpeechToText)
		voice.POST("/tts", s.handleTextToSpeech)
		voice.GET("/status", s.handleVoiceStatus)
	}

	vision := v1.Group("/vision", s.requireAuth())
	{
		vision.POST("/detect-faces", s.handleDetectFaces)
		vision.POST("/recognize-face", s.handleRecognizeFace)
		vision.POST("/detect-emotion", s.handleDetectEmotion)
		vision.POST("/register-face", s.handleRegisterFace)
		vision.GET("/status", s.handleVisionStatus)
	}

	brain := v1.Group("/brain", s.requireAuth())
	{
		brain.POST("/command", s.handleCommand)
		brain.GET("/status", s.handleBrainStatus)
		brain.GET("/conversation/:session_id", s.handleConversationHistory)
		brain.POST("/conversation/:session_id/summary", s.handleConversationSummary)
		brain.DELETE("/conversation/:session_id", s.handleDeleteConversation)
	}

	skills := v1.Group("/skills", s.requireAuth())
	{
		skills.GET("", s.handleListSkills)
		skills.POST("", s.handleCreateSkill)
		skills.GET("/active", s.handleActiveSkills)
		skills.GET("/:id", s.handleGetSkill)
		skills.POST("/:id/activate", s.handleActivateSkill)
		skills.POST("/:id/deactivate", s.handleDeactivateSkill)
	}

	system := v1.Group("/system")
	{
		system.GET("/stats", s.handleSystemStats)
		system.GET("/info", s.handleSystemInfo)
		system.GET("/uptime", s.handleSystemUptime)
		system.GET("/config", s.requireAuth(), s.handleSystemConfig)
	}

	return r
}
