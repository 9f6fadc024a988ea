package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voxden/voxd/internal/auth"
	"github.com/voxden/voxd/internal/domain"
	"github.com/voxden/voxd/internal/store"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=36"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	User         *domain.User `json:"user"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	user := &domain.User{
		ID:             domain.UserID(uuid.NewString()),
		Username:       req.Username,
		Email:          req.Email,
		FullName:       req.FullName,
		HashedPassword: hashed,
		IsActive:       true,
		Preferences: map[string]any{
			"theme":          "dark",
			"voice_enabled":  true,
			"camera_enabled": true,
		},
	}

	if err := s.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username or email already registered"})
			return
		}
		log.Error().Err(err).Str("module", "api.auth").Msg("create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	log.Info().Str("module", "api.auth").Str("username", user.Username).Msg("new user registered")
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.store.UserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
		return
	}
	if err := auth.VerifyPassword(req.Password, user.HashedPassword); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is inactive"})
		return
	}

	resp, err := s.issueTokens(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if err := s.store.TouchLastLogin(c.Request.Context(), user.ID); err != nil {
		log.Error().Err(err).Str("module", "api.auth").Msg("touch last login")
	}

	log.Info().Str("module", "api.auth").Str("username", user.Username).Msg("user logged in")
	c.JSON(http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := s.tokens.Parse(req.RefreshToken)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	user, err := s.store.UserByID(c.Request.Context(), domain.UserID(claims.Subject))
	if err != nil || !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user"})
		return
	}

	resp, err := s.issueTokens(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token refresh failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) issueTokens(user *domain.User) (*tokenResponse, error) {
	access, err := s.tokens.AccessToken(string(user.ID), user.Username, user.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.RefreshToken(string(user.ID))
	if err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		User:         user,
	}, nil
}

func (s *Server) handleMe(c *gin.Context) {
	user, err := s.store.UserByID(c.Request.Context(), domain.UserID(c.GetString("user_id")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleLogout(c *gin.Context) {
	log.Info().Str("module", "api.auth").Str("username", c.GetString("username")).Msg("user logged out")
	c.JSON(http.StatusOK, gin.H{"message": "successfully logged out"})
}
