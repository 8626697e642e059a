package server

import (
	"encoding/json"
	"sync"

	"github.com/automerge/automerge-go"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/tandem/backend/internal/board"
)

// sendBufferSize bounds the per-connection outbound queue. A peer that
// cannot drain its queue is disconnected rather than blocking broadcasts.
const sendBufferSize = 256

// session holds the per-connection state: identity, subscriptions with
// their sync states, the rate limiter and the outbound queue.
type session struct {
	hub     *Hub
	conn    *websocket.Conn
	userID  board.UserID
	limiter *frameLimiter
	subs    map[board.DocKey]*automerge.SyncState

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// HandleConnection runs the session loop for an upgraded websocket until
// the peer disconnects. Subscriptions are released deterministically on
// return.
func (h *Hub) HandleConnection(conn *websocket.Conn, userID board.UserID) {
	s := &session{
		hub:     h,
		conn:    conn,
		userID:  userID,
		limiter: newFrameLimiter(),
		subs:    make(map[board.DocKey]*automerge.SyncState),
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	go s.writeLoop()

	s.enqueue(welcomeFrame(userID))

	h.mu.Lock()
	for _, key := range []board.DocKey{board.RegistryKey(), board.BulletinsKey()} {
		if err := h.subscribe(s, key); err != nil {
			h.logger.Error("initial subscription failed",
				zap.String("doc", key.String()),
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
	h.mu.Unlock()

	h.logger.Info("session opened", zap.String("user_id", userID.String()))
	s.readLoop()

	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	s.close()
	h.logger.Info("session closed", zap.String("user_id", userID.String()))
}

func (s *session) readLoop() {
	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		s.handleFrame(payload)
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case payload := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// handleFrame parses and rate-costs one inbound frame, then hands it to the
// hub for dispatch under the mutation critical section.
func (s *session) handleFrame(payload []byte) {
	var frame clientFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		s.enqueue(errorFrame(board.CodeBadRequest, "malformed frame"))
		return
	}
	if !s.limiter.allow(frameCost(frame.Type)) {
		s.enqueue(errorFrame(board.CodeRateLimited, "rate limit exceeded"))
		return
	}
	s.hub.dispatch(s, frame)
}

// enqueue serializes a frame onto the outbound queue without blocking. A
// full queue closes the connection.
func (s *session) enqueue(frame serverFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.hub.logger.Error("frame marshal failed", zap.Error(err))
		return
	}
	select {
	case <-s.done:
	case s.send <- payload:
	default:
		s.hub.logger.Warn("outbound buffer overflow, dropping connection",
			zap.String("user_id", s.userID.String()))
		s.close()
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
