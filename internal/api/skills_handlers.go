package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voxden/voxd/internal/domain"
	"github.com/voxden/voxd/internal/store"
)

func (s *Server) handleListSkills(c *gin.Context) {
	skills, err := s.store.ListSkills(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "api.skills").Msg("list skills")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list skills"})
		return
	}
	if skills == nil {
		skills = []domain.Skill{}
	}
	c.JSON(http.StatusOK, gin.H{"skills": skills, "count": len(skills)})
}

// handleActiveSkills lists the names of currently active skills.
func (s *Server) handleActiveSkills(c *gin.Context) {
	skills, err := s.store.ActiveSkills(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "api.skills").Msg("list active skills")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list active skills"})
		return
	}
	names := make([]string, 0, len(skills))
	for _, sk := range skills {
		names = append(names, sk.Name)
	}
	c.JSON(http.StatusOK, gin.H{"active_skills": names, "count": len(names)})
}

type createSkillRequest struct {
	Name        string `json:"skill_name" binding:"required"`
	Version     string `json:"skill_version"`
	Description string `json:"description"`
}

func (s *Server) handleCreateSkill(c *gin.Context) {
	var req createSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Version == "" {
		req.Version = "1.0.0"
	}

	skill := &domain.Skill{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Version:     req.Version,
		Description: req.Description,
		IsInstalled: true,
	}
	if err := s.store.CreateSkill(c.Request.Context(), skill); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "skill already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create skill"})
		return
	}
	c.JSON(http.StatusCreated, skill)
}

func (s *Server) handleGetSkill(c *gin.Context) {
	skill, err := s.store.SkillByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "skill not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get skill"})
		return
	}
	c.JSON(http.StatusOK, skill)
}

func (s *Server) setSkillActive(c *gin.Context, active bool) {
	id := c.Param("id")
	if err := s.store.SetSkillActive(c.Request.Context(), id, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "skill not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update skill"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}

func (s *Server) handleActivateSkill(c *gin.Context)   { s.setSkillActive(c, true) }
func (s *Server) handleDeactivateSkill(c *gin.Context) { s.setSkillActive(c, false) }
