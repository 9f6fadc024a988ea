package api

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/voxden/voxd/internal/domain"
)

func readImageUpload(c *gin.Context) ([]byte, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image file"})
		return nil, false
	}
	data, err := readUpload(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image file"})
		return nil, false
	}
	return data, true
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleDetectFaces(c *gin.Context) {
	image, ok := readImageUpload(c)
	if !ok {
		return
	}
	faces, err := s.vision.DetectFaces(c.Request.Context(), image)
	if err != nil {
		log.Error().Err(err).Str("module", "api.vision").Msg("face detection failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "face detection failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"faces": faces, "count": len(faces)})
}

func (s *Server) handleRecognizeFace(c *gin.Context) {
	image, ok := readImageUpload(c)
	if !ok {
		return
	}
	result, err := s.vision.RecognizeFace(c.Request.Context(), image, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "api.vision").Msg("face recognition failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "face recognition failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleDetectEmotion(c *gin.Context) {
	image, ok := readImageUpload(c)
	if !ok {
		return
	}
	result, err := s.vision.DetectEmotion(c.Request.Context(), image)
	if err != nil {
		log.Error().Err(err).Str("module", "api.vision").Msg("emotion detection failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "emotion detection failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleRegisterFace stores the uploaded face against the calling user so
// the recognizer can name them later.
func (s *Server) handleRegisterFace(c *gin.Context) {
	image, ok := readImageUpload(c)
	if !ok {
		return
	}

	faces, err := s.vision.DetectFaces(c.Request.Context(), image)
	if err != nil {
		log.Error().Err(err).Str("module", "api.vision").Msg("face registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "face registration failed"})
		return
	}
	if len(faces) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no face detected in image"})
		return
	}

	userID := c.GetString("user_id")
	face := &domain.Face{
		UserID:    domain.UserID(userID),
		Label:     c.GetString("username"),
		Embedding: image,
	}
	if err := s.store.SaveFace(c.Request.Context(), face); err != nil {
		log.Error().Err(err).Str("module", "api.vision").Msg("save face")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "face registration failed"})
		return
	}

	log.Info().Str("module", "api.vision").Str("user", userID).Msg("face registered")
	c.JSON(http.StatusOK, gin.H{"message": "face registered successfully", "user_id": userID})
}

func (s *Server) handleVisionStatus(c *gin.Context) {
	registered, err := s.store.FaceCount(c.Request.Context())
	if err != nil {
		registered = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"is_ready":         s.vision.Ready(),
		"registered_faces": registered,
	})
}
