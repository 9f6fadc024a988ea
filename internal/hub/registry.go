// Package hub owns the live connection state: the connection map, the user
// index and the room membership sets, mutated only through the synchronized
// Registry so a disconnect racing a broadcast never leaves a dangling
// reference.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// M is one outbound envelope; the registry stamps a server-side timestamp
// into every copy it sends, regardless of payload content.
type M map[string]any

type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	// users indexes user id -> connection id (single session per user).
	users map[string]string
	// rooms maps room name -> member connection ids. Empty rooms are kept
	// and garbage-collected lazily via PruneRooms.
	rooms map[string]map[string]struct{}

	queueSize  int
	pingPeriod time.Duration
}

func NewRegistry(queueSize int, pingPeriod time.Duration) *Registry {
	return &Registry{
		conns:      make(map[string]*Conn),
		users:      make(map[string]string),
		rooms:      make(map[string]map[string]struct{}),
		queueSize:  queueSize,
		pingPeriod: pingPeriod,
	}
}

// Connect admits a transport and makes it addressable. The connection is
// visible to every addressing operation as soon as Connect returns.
func (r *Registry) Connect(t Transport, connID, userID string, metadata map[string]any) *Conn {
	conn := newConn(t, connID, userID, metadata, r.queueSize, r.pingPeriod)

	r.mu.Lock()
	r.conns[connID] = conn
	if userID != "" {
		r.users[userID] = connID
	}
	total := len(r.conns)
	r.mu.Unlock()

	go conn.writePump()

	log.Info().Str("module", "hub").Str("cid", connID).Str("user", userID).Int("total", total).Msg("connected")
	return conn
}

// Disconnect retires a connection: active map, every room, user index.
// Idempotent; repeated calls are no-ops.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	for _, members := range r.rooms {
		delete(members, connID)
	}
	if conn.UserID != "" && r.users[conn.UserID] == connID {
		delete(r.users, conn.UserID)
	}
	remaining := len(r.conns)
	r.mu.Unlock()

	conn.close()
	log.Info().Str("module", "hub").Str("cid", connID).Int("remaining", remaining).Msg("disconnected")
}

func (r *Registry) conn(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// Send delivers one envelope to one connection, stamped at send time.
// A transport-level failure is treated as a disconnect, not propagated as a
// caller problem; the error return exists so callers and tests can observe it.
func (r *Registry) Send(connID string, msg M) error {
	conn, ok := r.conn(connID)
	if !ok {
		return ErrConnClosed
	}
	data, err := marshalStamped(msg)
	if err != nil {
		return err
	}
	if err := conn.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "hub").Str("cid", connID).Msg("send failed, disconnecting")
		r.Disconnect(connID)
		return err
	}
	return nil
}

// SendToUser resolves the user index to at most one live connection.
// No live connection is a no-op, not an error.
func (r *Registry) SendToUser(userID string, msg M) error {
	r.mu.RLock()
	connID, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.Send(connID, msg)
}

// Broadcast fans out to every live connection not excluded. Failures are
// collected during the sweep and disconnected afterwards; the failed ids are
// returned.
func (r *Registry) Broadcast(msg M, exclude ...string) []string {
	skip := toSet(exclude)

	r.mu.RLock()
	targets := make([]*Conn, 0, len(r.conns))
	for id, c := range r.conns {
		if _, excluded := skip[id]; !excluded {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	data, err := marshalStamped(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("broadcast marshal")
		return nil
	}

	var failed []string
	for _, c := range targets {
		if err := c.TrySend(data); err != nil {
			failed = append(failed, c.ID)
		}
	}
	for _, id := range failed {
		log.Warn().Str("module", "hub").Str("cid", id).Msg("broadcast delivery failed, disconnecting")
		r.Disconnect(id)
	}
	return failed
}

// JoinRoom adds membership only while the connection is still live, so a
// join racing a disconnect cannot resurrect the id inside a room.
func (r *Registry) JoinRoom(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, live := r.conns[connID]; !live {
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[connID] = struct{}{}
	log.Debug().Str("module", "hub").Str("cid", connID).Str("room", room).Msg("joined room")
	return true
}

func (r *Registry) LeaveRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		log.Debug().Str("module", "hub").Str("cid", connID).Str("room", room).Msg("left room")
	}
}

// SendToRoom fans out to the room's membership as read at call time; joins
// concurrent with the fan-out may or may not be included.
func (r *Registry) SendToRoom(room string, msg M, exclude ...string) []string {
	skip := toSet(exclude)

	r.mu.RLock()
	members := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		if _, excluded := skip[id]; !excluded {
			members = append(members, id)
		}
	}
	r.mu.RUnlock()

	var failed []string
	for _, id := range members {
		if err := r.Send(id, msg); err != nil {
			failed = append(failed, id)
		}
	}
	return failed
}

func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, id)
	}
	return out
}

// RoomCount reports the number of rooms that currently have members.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, members := range r.rooms {
		if len(members) > 0 {
			n++
		}
	}
	return n
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ConnectionInfo returns a copy of the connection's metadata; the registry
// keeps ownership of the live map.
func (r *Registry) ConnectionInfo(connID string) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	meta := make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = v
	}
	return meta, true
}

// PruneRooms drops room entries that lost their last member. Run it
// periodically; membership operations themselves never pay the cleanup cost.
func (r *Registry) PruneRooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	pruned := 0
	for name, members := range r.rooms {
		if len(members) == 0 {
			delete(r.rooms, name)
			pruned++
		}
	}
	return pruned
}

// CloseAll drains the registry on shutdown: best-effort transport close,
// unconditional removal.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Disconnect(id)
	}
	log.Info().Str("module", "hub").Int("count", len(ids)).Msg("all connections closed")
}

func marshalStamped(msg M) ([]byte, error) {
	stamped := make(M, len(msg)+1)
	for k, v := range msg {
		stamped[k] = v
	}
	stamped["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(stamped)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
