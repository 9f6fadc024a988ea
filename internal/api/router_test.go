package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxden/voxd/internal/auth"
	"github.com/voxden/voxd/internal/cache"
	"github.com/voxden/voxd/internal/config"
	"github.com/voxden/voxd/internal/hub"
	"github.com/voxden/voxd/internal/inference"
	"github.com/voxden/voxd/internal/store"
	"github.com/voxden/voxd/internal/ws"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:           "test",
		Secret:         "api-test-secret",
		SendQueueSize:  16,
		AdapterTimeout: 2 * time.Second,
		MessageRate:    100,
		MessageBurst:   100,
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tokens, err := auth.NewManager(cfg.Secret, time.Hour, 24*time.Hour)
	require.NoError(t, err)

	cch := cache.New("redis://127.0.0.1:1/0", time.Minute)
	registry := hub.NewRegistry(cfg.SendQueueSize, 0)
	voice := inference.NewMockVoice()
	vision := inference.NewMockVision()
	brain := inference.NewOpenAIBrain("", "gpt-4o-mini")

	ctl := ws.NewController(cfg, registry, tokens, st, voice, vision, brain)
	return NewServer(cfg, st, cch, tokens, registry, voice, vision, brain, ctl).SetupRouter()
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "audio/wav" {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

// register + login, returning a valid access token.
func obtainToken(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "a-secure-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice",
		"password": "a-secure-password",
	})
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := resp["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRootAndProbes(t *testing.T) {
	r := newTestServer(t)

	w, resp := doJSON(t, r, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "voxd", resp["system"])
	assert.Equal(t, "operational", resp["status"])

	w, resp = doJSON(t, r, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["ready"])

	w, resp = doJSON(t, r, http.MethodGet, "/alive", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["alive"])
}

func TestHealthDegradedWithoutCache(t *testing.T) {
	r := newTestServer(t)

	w, resp := doJSON(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", resp["status"])

	services, ok := resp["services"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "healthy", services["database"])
	assert.Equal(t, "unhealthy", services["cache"])
	assert.Equal(t, "healthy", services["brain"])
}

func TestRegisterValidation(t *testing.T) {
	r := newTestServer(t)

	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "ab", // too short
		"email":    "not-an-email",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestServer(t)
	obtainToken(t, r)

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "a-secure-password",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "username or email already registered", resp["error"])
}

func TestLoginWrongPassword(t *testing.T) {
	r := newTestServer(t)
	obtainToken(t, r)

	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice",
		"password": "nope",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "nobody",
		"password": "whatever",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeRequiresToken(t *testing.T) {
	r := newTestServer(t)
	token := obtainToken(t, r)

	w, _ := doJSON(t, r, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/auth/me", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := doJSON(t, r, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", resp["username"])
	// The password hash never leaves the server.
	_, leaked := resp["hashed_password"]
	assert.False(t, leaked)
}

func TestRefreshFlow(t *testing.T) {
	r := newTestServer(t)
	obtainToken(t, r)

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice",
		"password": "a-secure-password",
	})
	require.Equal(t, http.StatusOK, w.Code)
	refresh, _ := resp["refresh_token"].(string)
	access, _ := resp["access_token"].(string)
	require.NotEmpty(t, refresh)

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refresh_token": refresh,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp["access_token"])

	// An access token is not accepted as a refresh token.
	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refresh_token": access,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBrainCommandAndHistory(t *testing.T) {
	r := newTestServer(t)
	token := obtainToken(t, r)

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/brain/command", token, gin.H{
		"text":       "hello assistant",
		"session_id": "s1",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "greeting", resp["intent"])
	assert.NotEmpty(t, resp["text"])

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/brain/conversation/s1", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, resp["count"])

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/brain/conversation/s1/summary", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp["summary"])

	w, resp = doJSON(t, r, http.MethodDelete, "/api/v1/brain/conversation/s1", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, resp["deleted"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/brain/conversation/s1/summary", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSkillsEndpoints(t *testing.T) {
	r := newTestServer(t)
	token := obtainToken(t, r)

	w, resp := doJSON(t, r, http.MethodGet, "/api/v1/skills", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, resp["count"])

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/skills", token, gin.H{
		"skill_name": "weather",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	skillID, _ := resp["id"].(string)
	require.NotEmpty(t, skillID)
	assert.Equal(t, "1.0.0", resp["skill_version"])

	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/skills/"+skillID+"/activate", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["is_active"])

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/skills/"+skillID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["is_active"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/skills/missing/activate", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTextToSpeech(t *testing.T) {
	r := newTestServer(t)
	token := obtainToken(t, r)

	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/voice/tts", token, gin.H{
		"text": "Good day.",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, "RIFF", w.Body.String()[:4])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/voice/tts", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func doUpload(t *testing.T, r *gin.Engine, path, token, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSpeechToTextUpload(t *testing.T) {
	r := newTestServer(t)
	token := obtainToken(t, r)

	w := doUpload(t, r, "/api/v1/voice/stt", token, "audio", "clip.wav", []byte("fake-audio"))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["text"])

	// Missing file field.
	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/voice/stt", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVisionEndpoints(t *testing.T) {
	r := newTestServer(t)
	token := obtainToken(t, r)

	w := doUpload(t, r, "/api/v1/vision/detect-faces", token, "image", "frame.jpg", []byte("fake-image"))
	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 0, resp["count"])

	// The detector found no face, so registration is rejected.
	w = doUpload(t, r, "/api/v1/vision/register-face", token, "image", "frame.jpg", []byte("fake-image"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/vision/status", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBrainStatus(t *testing.T) {
	r := newTestServer(t)
	token := obtainToken(t, r)

	w, resp := doJSON(t, r, http.MethodGet, "/api/v1/brain/status", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["is_ready"])
	// No API key configured in tests, so the brain reports fallback mode.
	assert.Equal(t, "fallback", resp["llm_provider"])
	assert.Equal(t, "none", resp["model"])
}

func TestActiveSkills(t *testing.T) {
	r := newTestServer(t)
	token := obtainToken(t, r)

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/skills", token, gin.H{"skill_name": "weather"})
	require.Equal(t, http.StatusCreated, w.Code)
	weatherID, _ := resp["id"].(string)
	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/skills", token, gin.H{"skill_name": "timer"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/skills/active", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, resp["count"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/skills/"+weatherID+"/activate", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/skills/active", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp["count"])
	names, ok := resp["active_skills"].([]any)
	require.True(t, ok)
	require.Len(t, names, 1)
	assert.Equal(t, "weather", names[0])
}

func TestVoiceStatusFields(t *testing.T) {
	r := newTestServer(t)
	token := obtainToken(t, r)

	w, resp := doJSON(t, r, http.MethodGet, "/api/v1/voice/status", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["is_ready"])
	assert.Equal(t, true, resp["stt_available"])
	assert.Equal(t, true, resp["tts_available"])
}

func TestSystemInfoAndUptime(t *testing.T) {
	r := newTestServer(t)

	w, resp := doJSON(t, r, http.MethodGet, "/api/v1/system/info", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "voxd", resp["name"])
	assert.Equal(t, "2.0.0", resp["version"])
	assert.NotEmpty(t, resp["go_version"])

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/system/uptime", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp["started_at"])
	assert.Contains(t, resp["uptime_formatted"], "d ")
}

func TestSystemConfigRequiresAuthAndHidesSecrets(t *testing.T) {
	r := newTestServer(t)
	token := obtainToken(t, r)

	w, _ := doJSON(t, r, http.MethodGet, "/api/v1/system/config", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := doJSON(t, r, http.MethodGet, "/api/v1/system/config", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test", resp["mode"])
	hub, ok := resp["hub"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 16, hub["send_queue_size"])

	raw := w.Body.String()
	assert.NotContains(t, raw, "api-test-secret")
	assert.NotContains(t, raw, "secret")
	assert.NotContains(t, raw, "redis")
	assert.NotContains(t, raw, "database_path")
}

func TestSystemStats(t *testing.T) {
	r := newTestServer(t)

	w, resp := doJSON(t, r, http.MethodGet, "/api/v1/system/stats", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, resp["connections"])
	assert.EqualValues(t, 0, resp["rooms"])
}
