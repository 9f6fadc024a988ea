package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/voxden/voxd/internal/inference"
)

// handleSpeechToText accepts an uploaded audio file and returns its
// transcription.
func (s *Server) handleSpeechToText(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing audio file"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable audio file"})
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable audio file"})
		return
	}

	language := c.DefaultQuery("language", "en")
	result, err := s.voice.Transcribe(c.Request.Context(), audio, language)
	if err != nil {
		log.Error().Err(err).Str("module", "api.voice").Msg("stt failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "speech-to-text failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type ttsRequest struct {
	Text     string `json:"text" binding:"required"`
	Speaker  string `json:"speaker"`
	Language string `json:"language"`
	Emotion  string `json:"emotion"`
}

func (s *Server) handleTextToSpeech(c *gin.Context) {
	var req ttsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	audio, err := s.voice.Synthesize(c.Request.Context(), req.Text, inference.SynthesisOptions{
		Speaker:  req.Speaker,
		Language: req.Language,
		Emotion:  req.Emotion,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "api.voice").Msg("tts failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "text-to-speech failed"})
		return
	}
	if audio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "speech synthesis unavailable"})
		return
	}

	c.Header("Content-Disposition", "attachment; filename=speech.wav")
	c.Data(http.StatusOK, "audio/wav", audio)
}

func (s *Server) handleVoiceStatus(c *gin.Context) {
	stt, tts := s.voice.Ready(), s.voice.Ready()
	if caps, ok := s.voice.(inference.VoiceCapabilities); ok {
		stt, tts = caps.STTAvailable(), caps.TTSAvailable()
	}
	c.JSON(http.StatusOK, gin.H{
		"is_ready":      s.voice.Ready(),
		"stt_available": stt,
		"tts_available": tts,
	})
}
