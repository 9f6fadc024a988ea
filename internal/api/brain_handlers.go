package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/voxden/voxd/internal/domain"
	"github.com/voxden/voxd/internal/inference"
)

type commandRequest struct {
	Text      string         `json:"text" binding:"required"`
	SessionID string         `json:"session_id" binding:"required"`
	Context   map[string]any `json:"context"`
}

func (s *Server) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("user_id")
	result, err := s.brain.ProcessCommand(c.Request.Context(), req.Text, userID, req.Context)
	if err != nil {
		log.Error().Err(err).Str("module", "api.brain").Msg("command processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "command processing failed"})
		return
	}

	err = s.store.SaveExchange(c.Request.Context(),
		&domain.ConversationTurn{
			UserID:    domain.UserID(userID),
			SessionID: req.SessionID,
			Role:      "user",
			Content:   req.Text,
			Intent:    result.Intent,
		},
		&domain.ConversationTurn{
			UserID:     domain.UserID(userID),
			SessionID:  req.SessionID,
			Role:       "assistant",
			Content:    result.Text,
			Intent:     result.Intent,
			Confidence: int(result.Confidence * 100),
		})
	if err != nil {
		log.Error().Err(err).Str("module", "api.brain").Msg("failed to persist exchange")
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleConversationHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := domain.UserID(c.GetString("user_id"))

	turns, err := s.store.ConversationHistory(c.Request.Context(), userID, sessionID, 50)
	if err != nil {
		log.Error().Err(err).Str("module", "api.brain").Msg("get conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   turns,
		"count":      len(turns),
	})
}

func (s *Server) handleConversationSummary(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := domain.UserID(c.GetString("user_id"))

	turns, err := s.store.ConversationHistory(c.Request.Context(), userID, sessionID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get conversation"})
		return
	}
	if len(turns) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	history := make([]inference.Turn, 0, len(turns))
	for _, t := range turns {
		history = append(history, inference.Turn{Role: t.Role, Content: t.Content})
	}

	summary, err := s.brain.SummarizeConversation(c.Request.Context(), history)
	if err != nil {
		log.Error().Err(err).Str("module", "api.brain").Msg("summary generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate summary"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":    sessionID,
		"summary":       summary,
		"message_count": len(turns),
	})
}

func (s *Server) handleBrainStatus(c *gin.Context) {
	provider, model := "fallback", "none"
	if info, ok := s.brain.(inference.BrainInfo); ok {
		provider, model = info.Provider(), info.Model()
	}
	c.JSON(http.StatusOK, gin.H{
		"is_ready":     s.brain.Ready(),
		"llm_provider": provider,
		"model":        model,
	})
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := domain.UserID(c.GetString("user_id"))

	deleted, err := s.store.DeleteConversation(c.Request.Context(), userID, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "conversation deleted",
		"session_id": sessionID,
		"deleted":    deleted,
	})
}
