package inference

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voxden/voxd/internal/cache"
)

// CachingVoice wraps a Voice adapter with redis-backed result caching, so
// repeated transcriptions or synthesis of identical inputs skip the model.
type CachingVoice struct {
	inner Voice
	cache *cache.Cache
	ttl   time.Duration
}

func NewCachingVoice(inner Voice, c *cache.Cache, ttl time.Duration) *CachingVoice {
	return &CachingVoice{inner: inner, cache: c, ttl: ttl}
}

func (v *CachingVoice) Ready() bool { return v.inner.Ready() }

func (v *CachingVoice) STTAvailable() bool {
	if caps, ok := v.inner.(VoiceCapabilities); ok {
		return caps.STTAvailable()
	}
	return v.inner.Ready()
}

func (v *CachingVoice) TTSAvailable() bool {
	if caps, ok := v.inner.(VoiceCapabilities); ok {
		return caps.TTSAvailable()
	}
	return v.inner.Ready()
}

func (v *CachingVoice) Transcribe(ctx context.Context, audio []byte, language string) (Transcription, error) {
	key := fmt.Sprintf("stt:%x:%s", sha256.Sum256(audio), language)

	var cached Transcription
	if v.cache.Get(ctx, key, &cached) {
		log.Debug().Str("module", "inference.voice").Msg("stt cache hit")
		return cached, nil
	}

	result, err := v.inner.Transcribe(ctx, audio, language)
	if err != nil {
		return result, err
	}
	v.cache.Set(ctx, key, result, v.ttl)
	return result, nil
}

func (v *CachingVoice) Synthesize(ctx context.Context, text string, opts SynthesisOptions) ([]byte, error) {
	key := fmt.Sprintf("tts:%x:%s:%s", sha256.Sum256([]byte(text)), opts.Speaker, opts.Emotion)

	var cached string
	if v.cache.Get(ctx, key, &cached) {
		log.Debug().Str("module", "inference.voice").Msg("tts cache hit")
		if audio, err := base64.StdEncoding.DecodeString(cached); err == nil {
			return audio, nil
		}
	}

	audio, err := v.inner.Synthesize(ctx, text, opts)
	if err != nil || audio == nil {
		return audio, err
	}
	v.cache.Set(ctx, key, base64.StdEncoding.EncodeToString(audio), v.ttl)
	return audio, nil
}
