// Package inference defines the boundary contracts to the speech, vision and
// language services. Adapters fail soft: a degraded placeholder result comes
// back instead of an error wherever the dispatch loop has no sensible
// recovery of its own.
package inference

import (
	"context"
	"time"
)

// Transcription is the normalized speech-to-text result.
type Transcription struct {
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	Confidence float64   `json:"confidence"`
	Segments   []Segment `json:"segments"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type SynthesisOptions struct {
	Speaker  string
	Language string
	Emotion  string
}

// Face is one detection result.
type Face struct {
	ID         string      `json:"id"`
	BBox       []float64   `json:"bbox"` // x1, y1, x2, y2
	Confidence float64     `json:"confidence"`
	Landmarks  [][]float64 `json:"landmarks,omitempty"`
}

type Recognition struct {
	Identity   string   `json:"identity"`
	Confidence float64  `json:"confidence"`
	Distance   *float64 `json:"distance,omitempty"`
}

type Emotion struct {
	Emotion     string             `json:"emotion"`
	Confidence  float64            `json:"confidence"`
	AllEmotions map[string]float64 `json:"all_emotions"`
}

// CommandResult is what the brain returns for one utterance.
type CommandResult struct {
	Text       string    `json:"text"`
	Intent     string    `json:"intent"`
	Actions    []Action  `json:"actions"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

type Action struct {
	Type    string `json:"type"`
	Details string `json:"details"`
}

// Voice transcribes and synthesizes speech.
//
// Transcribe never errors on bad audio; it returns a low-confidence
// placeholder instead. Synthesize returns (nil, nil) when synthesis is
// unavailable, which callers treat as "omit audio", not as a failure.
type Voice interface {
	Transcribe(ctx context.Context, audio []byte, language string) (Transcription, error)
	Synthesize(ctx context.Context, text string, opts SynthesisOptions) ([]byte, error)
	Ready() bool
}

type Vision interface {
	DetectFaces(ctx context.Context, image []byte) ([]Face, error)
	RecognizeFace(ctx context.Context, image []byte, bbox []float64) (Recognition, error)
	DetectEmotion(ctx context.Context, image []byte) (Emotion, error)
	Ready() bool
}

type Brain interface {
	ProcessCommand(ctx context.Context, text, userID string, extra map[string]any) (CommandResult, error)
	SummarizeConversation(ctx context.Context, history []Turn) (string, error)
	Ready() bool
}

// Turn is one conversation message handed to the brain for summarization.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// VoiceCapabilities is optionally implemented by Voice adapters that can
// report per-direction availability.
type VoiceCapabilities interface {
	STTAvailable() bool
	TTSAvailable() bool
}

// BrainInfo is optionally implemented by Brain adapters that can name their
// backing provider and model.
type BrainInfo interface {
	Provider() string
	Model() string
}
