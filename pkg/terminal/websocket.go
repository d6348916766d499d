package terminal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luishsr/rustvm/pkg/auth"
	"github.com/luishsr/rustvm/pkg/configuration"
	"github.com/luishsr/rustvm/pkg/logger"
	"github.com/luishsr/rustvm/pkg/shared"
	"github.com/luishsr/rustvm/pkg/store"
)

// Websocket tuning values come from the [Network] section of settings.cfg.

func getWriteWait() time.Duration {
	return configuration.GetDuration("Network", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Network", "pong_timeout", 90*time.Second)
}

func getPingPeriod() time.Duration {
	pongWait := getPongWait()
	return (pongWait * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Network", "max_message_size_kb", 64) * 1024)
}

func getMaxChannelBuffer() int {
	return configuration.GetInt("Network", "max_channel_buffer", 1000)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage is what the client sends over the websocket.
type ClientMessage struct {
	Type    string `json:"type"`              // "run", "runstored", "save", "list", "input"
	Program string `json:"program,omitempty"` // inline program text for "run" / "save"
	Name    string `json:"name,omitempty"`    // stored program name
	Content string `json:"content,omitempty"` // input line for "input"
}

// HandleWebSocket upgrades the connection and serves one interpreter
// session. The JWT session token is expected in the token query parameter.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		logger.SecurityWarn("WebSocket connection without token from %s", r.RemoteAddr)
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(tokenString)
	if err != nil {
		logger.SecurityWarn("WebSocket connection with invalid token from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error(logger.AreaWebSocket, "Upgrade failed: %v", err)
		return
	}

	s := &session{
		id:         claims.SessionID,
		username:   claims.Username,
		conn:       conn,
		store:      h.store,
		outputChan: make(chan shared.Message, getMaxChannelBuffer()),
		done:       make(chan struct{}),
	}

	logger.Info(logger.AreaWebSocket, "Session %s connected (user: %s)", s.id, s.username)
	s.sendMessage(shared.MessageTypeSession, s.id)

	go s.writePump()
	s.readLoop()
}

// readLoop consumes client messages until the connection closes.
func (s *session) readLoop() {
	defer func() {
		close(s.done)
		s.abort()
		s.conn.Close()
		logger.Info(logger.AreaWebSocket, "Session %s disconnected", s.id)
	}()

	s.conn.SetReadLimit(getMaxMessageSize())
	s.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn(logger.AreaWebSocket, "Session %s read error: %v", s.id, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn(logger.AreaWebSocket, "Session %s sent invalid JSON: %v", s.id, err)
			s.sendMessage(shared.MessageTypeError, "invalid message format")
			continue
		}

		s.handleClientMessage(msg)
	}
}

// handleClientMessage dispatches one client message.
func (s *session) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case "run":
		if strings.TrimSpace(msg.Program) == "" {
			s.sendMessage(shared.MessageTypeError, "empty program")
			return
		}
		s.startRun(msg.Program)

	case "runstored":
		if msg.Name == "" {
			s.sendMessage(shared.MessageTypeError, "program name required")
			return
		}
		prog, err := s.store.LoadProgram(s.owner(), msg.Name)
		if err != nil {
			if errors.Is(err, store.ErrProgramNotFound) {
				s.sendMessage(shared.MessageTypeError, "program not found: "+msg.Name)
			} else {
				logger.Error(logger.AreaSession, "Session %s failed to load %q: %v", s.id, msg.Name, err)
				s.sendMessage(shared.MessageTypeError, "failed to load program")
			}
			return
		}
		s.startRun(prog.Source)

	case "save":
		if msg.Name == "" || strings.TrimSpace(msg.Program) == "" {
			s.sendMessage(shared.MessageTypeError, "program name and text required")
			return
		}
		if _, err := s.store.SaveProgram(s.owner(), msg.Name, msg.Program); err != nil {
			logger.Error(logger.AreaSession, "Session %s failed to save %q: %v", s.id, msg.Name, err)
			s.sendMessage(shared.MessageTypeError, "failed to save program")
			return
		}
		s.sendMessage(shared.MessageTypeStatus, "saved "+msg.Name)

	case "list":
		names, err := s.store.ListPrograms(s.owner())
		if err != nil {
			logger.Error(logger.AreaSession, "Session %s failed to list programs: %v", s.id, err)
			s.sendMessage(shared.MessageTypeError, "failed to list programs")
			return
		}
		s.sendMessage(shared.MessageTypeStatus, strings.Join(names, "\n"))

	case "input":
		s.feedInput(msg.Content)

	default:
		s.sendMessage(shared.MessageTypeError, "unknown message type: "+msg.Type)
	}
}

// writePump serializes queued messages onto the connection and keeps it
// alive with pings.
func (s *session) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.outputChan:
			s.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := s.conn.WriteJSON(msg); err != nil {
				logger.Warn(logger.AreaWebSocket, "Session %s write error: %v", s.id, err)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}
