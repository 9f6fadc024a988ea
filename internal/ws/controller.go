// Package ws is the real-time endpoint: one WebSocket per client, one
// dispatch loop per connection, routing inbound envelopes by their type tag.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/voxden/voxd/internal/auth"
	"github.com/voxden/voxd/internal/config"
	"github.com/voxden/voxd/internal/domain"
	"github.com/voxden/voxd/internal/hub"
	"github.com/voxden/voxd/internal/inference"
)

// ConversationStore is the slice of the persistence layer the dispatch loop
// needs: recording one user/assistant exchange.
type ConversationStore interface {
	SaveExchange(ctx context.Context, userTurn, assistantTurn *domain.ConversationTurn) error
}

// session is the per-connection identity resolved at connect time.
type session struct {
	connID   string
	userID   string
	username string
}

type Controller struct {
	cfg    *config.Config
	hub    *hub.Registry
	tokens *auth.Manager
	store  ConversationStore

	voice  inference.Voice
	vision inference.Vision
	brain  inference.Brain
}

func NewController(
	cfg *config.Config,
	registry *hub.Registry,
	tokens *auth.Manager,
	store ConversationStore,
	voice inference.Voice,
	vision inference.Vision,
	brain inference.Brain,
) *Controller {
	return &Controller{
		cfg:    cfg,
		hub:    registry,
		tokens: tokens,
		store:  store,
		voice:  voice,
		vision: vision,
		brain:  brain,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleConnect upgrades the request and runs the connection's dispatch loop
// until the transport dies. Token validation is opportunistic: a missing or
// invalid token downgrades to a guest session instead of rejecting.
func (ctl *Controller) HandleConnect(c *gin.Context) {
	sess := session{
		connID:   uuid.NewString(),
		username: "guest",
	}
	if token := c.Query("token"); token != "" {
		claims, err := ctl.tokens.ParseAccess(token)
		if err != nil {
			log.Warn().Err(err).Str("module", "ws").Str("cid", sess.connID).Msg("invalid token, downgrading to guest")
		} else {
			sess.userID = claims.Subject
			if claims.Username != "" {
				sess.username = claims.Username
			} else {
				sess.username = "user"
			}
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("ws upgrade")
		return
	}
	conn.SetReadLimit(ctl.cfg.ReadLimit)
	// Pong deadline slightly above the ping interval of the write pump.
	if pongWait := ctl.cfg.PingPeriod * 10 / 9; pongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	ctl.hub.Connect(conn, sess.connID, sess.userID, map[string]any{
		"username":     sess.username,
		"connected_at": time.Now().UTC().Format(time.RFC3339),
	})

	_ = ctl.hub.Send(sess.connID, hub.M{
		"type":          "system",
		"event":         "connected",
		"message":       "Connection established.",
		"connection_id": sess.connID,
		"username":      sess.username,
	})
	ctl.hub.JoinRoom(sess.connID, "main")

	ctl.readLoop(conn, sess)
}

// readLoop processes envelopes strictly in arrival order for one connection.
// It exits only on a transport-level failure; handler errors are reported to
// the client and the loop keeps going.
func (ctl *Controller) readLoop(conn *websocket.Conn, sess session) {
	defer ctl.hub.Disconnect(sess.connID)

	limiter := rate.NewLimiter(rate.Limit(ctl.cfg.MessageRate), ctl.cfg.MessageBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "ws").Str("cid", sess.connID).Msg("read loop closing")
			return
		}
		if !limiter.Allow() {
			_ = ctl.hub.Send(sess.connID, hub.M{
				"type":    "error",
				"message": "rate limit exceeded",
			})
			continue
		}
		ctl.handleMessage(sess, data)
	}
}

// handleMessage dispatches a single envelope. Whatever goes wrong inside a
// handler, the blast radius stays this one envelope: the client gets an
// error envelope and the loop survives.
func (ctl *Controller) handleMessage(sess session, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Any("panic", rec).Str("module", "ws").Str("cid", sess.connID).Msg("handler panic")
			_ = ctl.hub.Send(sess.connID, hub.M{
				"type":    "error",
				"message": "An error occurred",
			})
		}
	}()

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		_ = ctl.hub.Send(sess.connID, hub.M{
			"type":    "error",
			"message": "malformed envelope",
		})
		return
	}

	log.Debug().Str("module", "ws").Str("cid", sess.connID).Str("type", env.Type).Msg("received")

	var err error
	switch env.Type {
	case "ping":
		err = ctl.handlePing(sess)
	case "voice_command":
		err = ctl.handleVoiceCommand(sess, data)
	case "camera_frame":
		err = ctl.handleCameraFrame(sess, data)
	case "audio_chunk":
		err = ctl.handleAudioChunk(sess, data)
	case "join_room":
		err = ctl.handleJoinRoom(sess, data)
	case "leave_room":
		err = ctl.handleLeaveRoom(sess, data)
	case "broadcast":
		err = ctl.handleBroadcast(sess, data)
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown message type")
		_ = ctl.hub.Send(sess.connID, hub.M{
			"type":    "error",
			"message": "Unknown message type: " + env.Type,
		})
		return
	}

	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("cid", sess.connID).Str("type", env.Type).Msg("handler error")
		_ = ctl.hub.Send(sess.connID, hub.M{
			"type":    "error",
			"message": "Failed to process " + env.Type,
			"details": err.Error(),
		})
	}
}

func (ctl *Controller) handlePing(sess session) error {
	return ctl.hub.Send(sess.connID, hub.M{"type": "pong"})
}

func (ctl *Controller) handleJoinRoom(sess session, data []byte) error {
	var p struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Room == "" {
		p.Room = "main"
	}
	ctl.hub.JoinRoom(sess.connID, p.Room)
	return ctl.hub.Send(sess.connID, hub.M{
		"type": "room_joined",
		"room": p.Room,
	})
}

func (ctl *Controller) handleLeaveRoom(sess session, data []byte) error {
	var p struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Room == "" {
		return nil
	}
	ctl.hub.LeaveRoom(sess.connID, p.Room)
	return ctl.hub.Send(sess.connID, hub.M{
		"type": "room_left",
		"room": p.Room,
	})
}

func (ctl *Controller) handleBroadcast(sess session, data []byte) error {
	var p struct {
		Room    string         `json:"room"`
		Message map[string]any `json:"message"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Room == "" {
		p.Room = "main"
	}

	msg := hub.M{
		"type":    "broadcast",
		"from":    sess.username,
		"message": p.Message,
	}
	if ctl.cfg.BroadcastEcho {
		ctl.hub.SendToRoom(p.Room, msg)
	} else {
		ctl.hub.SendToRoom(p.Room, msg, sess.connID)
	}
	return nil
}

// adapterCtx bounds every inference call so a slow service cannot wedge the
// connection's loop.
func (ctl *Controller) adapterCtx() (context.Context, context.CancelFunc) {
	timeout := ctl.cfg.AdapterTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
