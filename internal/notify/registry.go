package notify

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrRegistryClosed = errors.New("connection registry closed")

const (
	DefaultHeartbeatInterval = 25 * time.Second
	DefaultIdleTimeout       = 90 * time.Second
)

// Registry is a goroutine-safe multiplexer from user id to the user's live
// streaming connections. A user may hold several connections at once (one
// per tab or device). The registry holds no persistent state: a restart
// loses all live connections, persisted notifications stay queryable.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]*Connection // userID -> connID -> connection

	heartbeatInterval time.Duration
	idleTimeout       time.Duration
	logger            *slog.Logger

	closed bool
	done   chan struct{}
}

// NewRegistry creates a registry. Zero durations fall back to the defaults.
func NewRegistry(heartbeatInterval, idleTimeout time.Duration, logger *slog.Logger) *Registry {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:             make(map[string]map[string]*Connection),
		heartbeatInterval: heartbeatInterval,
		idleTimeout:       idleTimeout,
		logger:            logger,
		done:              make(chan struct{}),
	}
}

// Start launches the heartbeat loop. It runs until Close.
func (r *Registry) Start() {
	go r.heartbeatLoop()
}

// Register creates and stores a new connection for userID.
// Fails only when the registry is shutting down.
func (r *Registry) Register(userID string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	conn := newConnection(userID)
	if r.conns[userID] == nil {
		r.conns[userID] = make(map[string]*Connection)
	}
	r.conns[userID][conn.ID] = conn

	r.logger.Info("stream_registered",
		"user_id", userID,
		"conn_id", conn.ID,
	)
	return conn, nil
}

// Unregister removes a connection, invoked on graceful client disconnect.
// Unknown or already-removed connections are a no-op.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	r.remove(conn)
	r.mu.Unlock()
}

// remove must be called with r.mu held.
func (r *Registry) remove(conn *Connection) {
	userConns, ok := r.conns[conn.UserID]
	if !ok {
		return
	}
	if _, ok := userConns[conn.ID]; !ok {
		return
	}
	delete(userConns, conn.ID)
	if len(userConns) == 0 {
		delete(r.conns, conn.UserID)
	}
	conn.close()
	r.logger.Info("stream_removed",
		"user_id", conn.UserID,
		"conn_id", conn.ID,
	)
}

// Deliver pushes data to every connection currently registered for userID
// and returns how many connections accepted it. A failed connection is
// dropped without affecting its siblings. Zero open connections is a no-op:
// the notification stays retrievable through the read path.
func (r *Registry) Deliver(userID string, data []byte) int {
	return r.fanout(userID, Message{Event: "notification", Data: data})
}

func (r *Registry) fanout(userID string, msg Message) int {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.conns[userID]))
	for _, conn := range r.conns[userID] {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	var failed []*Connection
	for _, conn := range targets {
		if err := conn.push(msg); err != nil {
			r.logger.Warn("stream_send_failed",
				"user_id", userID,
				"conn_id", conn.ID,
				"error", err.Error(),
			)
			failed = append(failed, conn)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		r.mu.Lock()
		for _, conn := range failed {
			r.remove(conn)
		}
		r.mu.Unlock()
	}
	return delivered
}

// Heartbeat sends a ping to every open connection and reclaims the dead
// ones: a ping failure is treated like a delivery failure, and connections
// with no successful send within the idle timeout are dropped.
func (r *Registry) Heartbeat() {
	r.mu.RLock()
	all := make([]*Connection, 0)
	for _, userConns := range r.conns {
		for _, conn := range userConns {
			all = append(all, conn)
		}
	}
	r.mu.RUnlock()

	cutoff := time.Now().Add(-r.idleTimeout)
	var failed []*Connection
	for _, conn := range all {
		if conn.LastActive().Before(cutoff) {
			failed = append(failed, conn)
			continue
		}
		if err := conn.push(Message{Event: "ping"}); err != nil {
			failed = append(failed, conn)
		}
	}

	if len(failed) > 0 {
		r.mu.Lock()
		for _, conn := range failed {
			r.remove(conn)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) heartbeatLoop() {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Heartbeat()
		case <-r.done:
			return
		}
	}
}

// Count returns the number of open connections for userID.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// Close stops the heartbeat loop and closes every connection. Register
// fails with ErrRegistryClosed afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.done)

	for _, userConns := range r.conns {
		for _, conn := range userConns {
			conn.close()
		}
	}
	r.conns = make(map[string]map[string]*Connection)
	r.logger.Info("registry_closed")
}
