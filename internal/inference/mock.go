package inference

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/rs/zerolog/log"
)

// MockVoice stands in when no real speech backend is configured. Results are
// deterministic placeholders so the rest of the pipeline stays exercisable.
type MockVoice struct{}

func NewMockVoice() *MockVoice {
	log.Info().Str("module", "inference.voice").Msg("voice adapter running in mock mode")
	return &MockVoice{}
}

func (v *MockVoice) Ready() bool        { return true }
func (v *MockVoice) STTAvailable() bool { return true }
func (v *MockVoice) TTSAvailable() bool { return true }

func (v *MockVoice) Transcribe(_ context.Context, audio []byte, language string) (Transcription, error) {
	if len(audio) == 0 {
		return Transcription{Language: language, Confidence: 0.0}, nil
	}
	if language == "" {
		language = "en"
	}
	return Transcription{
		Text:       "Hello, what's the weather today?",
		Language:   language,
		Confidence: 0.95,
	}, nil
}

// Synthesize returns one second of silence as a valid WAV file.
func (v *MockVoice) Synthesize(_ context.Context, text string, _ SynthesisOptions) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	return silentWAV(22050, 1), nil
}

func silentWAV(sampleRate, seconds int) []byte {
	samples := sampleRate * seconds
	dataLen := samples * 2 // 16-bit mono

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

// MockVision reports no detections. A frame with no decodable face yields an
// empty face list, which is the contract the dispatch loop relies on.
type MockVision struct{}

func NewMockVision() *MockVision {
	log.Info().Str("module", "inference.vision").Msg("vision adapter running in mock mode")
	return &MockVision{}
}

func (v *MockVision) Ready() bool { return true }

func (v *MockVision) DetectFaces(_ context.Context, image []byte) ([]Face, error) {
	return []Face{}, nil
}

func (v *MockVision) RecognizeFace(_ context.Context, _ []byte, _ []float64) (Recognition, error) {
	return Recognition{Identity: "unknown", Confidence: 0.0}, nil
}

func (v *MockVision) DetectEmotion(_ context.Context, _ []byte) (Emotion, error) {
	return Emotion{Emotion: "neutral", Confidence: 0.0, AllEmotions: map[string]float64{}}, nil
}
