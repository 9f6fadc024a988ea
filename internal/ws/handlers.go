package ws

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/voxden/voxd/internal/domain"
	"github.com/voxden/voxd/internal/hub"
	"github.com/voxden/voxd/internal/inference"
)

// recognitionCap bounds per-frame latency: only the first faces get the
// expensive recognition pass.
const recognitionCap = 3

func (ctl *Controller) handleVoiceCommand(sess session, data []byte) error {
	var p struct {
		Text      string         `json:"text"`
		SessionID string         `json:"session_id"`
		Context   map[string]any `json:"context"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Text) == "" {
		return ctl.hub.Send(sess.connID, hub.M{
			"type":    "error",
			"message": "Empty command",
		})
	}
	return ctl.runVoiceCommand(sess, p.Text, p.SessionID, p.Context)
}

// runVoiceCommand is the shared command path: the brain produces the reply,
// the exchange is persisted, and speech is attached when synthesis yields
// anything. It is reused by the final-audio-chunk re-dispatch.
func (ctl *Controller) runVoiceCommand(sess session, text, sessionID string, extra map[string]any) error {
	userID := sess.userID
	if userID == "" {
		userID = "anonymous"
	}
	if sessionID == "" {
		sessionID = sess.connID
	}

	ctx, cancel := ctl.adapterCtx()
	defer cancel()

	result, err := ctl.brain.ProcessCommand(ctx, text, userID, extra)
	if err != nil {
		return err
	}

	ctl.persistExchange(sess, sessionID, text, result)

	// Synthesis is strictly optional; nil audio means the reply ships
	// without it.
	var audioB64 any
	ttsCtx, ttsCancel := ctl.adapterCtx()
	audio, err := ctl.voice.Synthesize(ttsCtx, result.Text, inference.SynthesisOptions{})
	ttsCancel()
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("cid", sess.connID).Msg("tts failed")
	} else if audio != nil {
		audioB64 = base64.StdEncoding.EncodeToString(audio)
	}

	return ctl.hub.Send(sess.connID, hub.M{
		"type":       "voice_response",
		"text":       result.Text,
		"intent":     result.Intent,
		"audio":      audioB64,
		"actions":    result.Actions,
		"confidence": result.Confidence,
	})
}

func (ctl *Controller) persistExchange(sess session, sessionID, text string, result inference.CommandResult) {
	if ctl.store == nil {
		return
	}
	userID := domain.UserID(sess.userID)
	if userID == "" {
		userID = "anonymous"
	}
	ctx, cancel := ctl.adapterCtx()
	defer cancel()
	err := ctl.store.SaveExchange(ctx,
		&domain.ConversationTurn{
			UserID:    userID,
			SessionID: sessionID,
			Role:      "user",
			Content:   text,
			Intent:    result.Intent,
		},
		&domain.ConversationTurn{
			UserID:     userID,
			SessionID:  sessionID,
			Role:       "assistant",
			Content:    result.Text,
			Intent:     result.Intent,
			Confidence: int(result.Confidence * 100),
		})
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("cid", sess.connID).Msg("failed to persist exchange")
	}
}

func (ctl *Controller) handleCameraFrame(sess session, data []byte) error {
	var p struct {
		Frame string `json:"frame"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Frame == "" {
		return nil
	}

	image, err := decodeBase64Payload(p.Frame)
	if err != nil {
		return err
	}

	ctx, cancel := ctl.adapterCtx()
	defer cancel()

	faces, err := ctl.vision.DetectFaces(ctx, image)
	if err != nil {
		return err
	}

	recognition := make([]inference.Recognition, 0, recognitionCap)
	for i, face := range faces {
		if i == recognitionCap {
			break
		}
		rec, err := ctl.vision.RecognizeFace(ctx, image, face.BBox)
		if err != nil {
			log.Error().Err(err).Str("module", "ws").Str("cid", sess.connID).Msg("face recognition failed")
			continue
		}
		recognition = append(recognition, rec)
	}

	var emotion any
	if len(faces) > 0 {
		e, err := ctl.vision.DetectEmotion(ctx, image)
		if err != nil {
			log.Error().Err(err).Str("module", "ws").Str("cid", sess.connID).Msg("emotion detection failed")
		} else {
			emotion = e
		}
	}

	return ctl.hub.Send(sess.connID, hub.M{
		"type":        "vision_update",
		"faces":       faces,
		"recognition": recognition,
		"emotion":     emotion,
	})
}

func (ctl *Controller) handleAudioChunk(sess session, data []byte) error {
	var p struct {
		Audio    string `json:"audio"`
		IsFinal  bool   `json:"is_final"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Audio == "" {
		return nil
	}

	audio, err := decodeBase64Payload(p.Audio)
	if err != nil {
		return err
	}

	ctx, cancel := ctl.adapterCtx()
	result, err := ctl.voice.Transcribe(ctx, audio, p.Language)
	cancel()
	if err != nil {
		return err
	}

	if err := ctl.hub.Send(sess.connID, hub.M{
		"type":       "transcription",
		"text":       result.Text,
		"is_final":   p.IsFinal,
		"confidence": result.Confidence,
	}); err != nil {
		return err
	}

	// A final chunk's transcript re-enters the command path.
	if p.IsFinal && strings.TrimSpace(result.Text) != "" {
		return ctl.runVoiceCommand(sess, result.Text, "", nil)
	}
	return nil
}

// decodeBase64Payload strips an optional data-URL prefix before decoding.
func decodeBase64Payload(payload string) ([]byte, error) {
	if idx := strings.Index(payload, "base64,"); idx >= 0 {
		payload = payload[idx+len("base64,"):]
	}
	return base64.StdEncoding.DecodeString(payload)
}
