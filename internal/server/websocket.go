package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/trust-ai-analyzer/internal/jsonx"
)

// Websocket frame types.
const (
	FrameMessage = "message" // client: a user turn
	FramePing    = "ping"    // client: keepalive
	FramePong    = "pong"
	FrameDelta   = "delta" // server: a piece of the reply
	FrameDone    = "done"  // server: the complete reply
	FrameError   = "error"
)

// ChatErrorMessage is sent when a reply could not be produced.
const ChatErrorMessage = "Sorry, I encountered an error. Please try again."

// WSMessage is a client frame.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSChatPayload is the payload of a message frame.
type WSChatPayload struct {
	Message string `json:"message"`
}

// WSReply is a server frame.
type WSReply struct {
	Type    string          `json:"type"`
	Payload *WSReplyPayload `json:"payload,omitempty"`
}

type WSReplyPayload struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

const wsWriteWait = 10 * time.Second

func (s *Server) handleWebSocketChat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	cs, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Chat session not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Info("WebSocket connected", zap.String("session_id", id))

	for {
		var in WSMessage
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("WebSocket read error", zap.String("session_id", id), zap.Error(err))
			}
			return
		}

		switch in.Type {
		case FrameMessage:
			var payload WSChatPayload
			if err := jsonx.Unmarshal(in.Payload, &payload); err != nil || strings.TrimSpace(payload.Message) == "" {
				continue
			}
			if err := s.streamReply(r.Context(), conn, cs, payload.Message); err != nil {
				s.logger.Debug("WebSocket write failed", zap.String("session_id", id), zap.Error(err))
				return
			}
		case FramePing:
			if err := writeFrame(conn, WSReply{Type: FramePong}); err != nil {
				return
			}
		}
	}
}

// streamReply forwards one reply as delta frames followed by a done frame.
// It returns an error only when the connection is no longer writable.
func (s *Server) streamReply(ctx context.Context, conn *websocket.Conn, cs *chatSession, message string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var reply strings.Builder
	for delta, err := range cs.session.SendStreaming(ctx, message) {
		if err != nil {
			s.logger.Error("Chat turn failed", zap.Error(err))
			return writeFrame(conn, WSReply{Type: FrameError, Payload: &WSReplyPayload{Error: ChatErrorMessage}})
		}
		if delta == "" {
			continue
		}
		reply.WriteString(delta)
		if err := writeFrame(conn, WSReply{Type: FrameDelta, Payload: &WSReplyPayload{Text: delta}}); err != nil {
			return err
		}
	}

	if cs.historyID != "" {
		if err := s.deps.History.UpdateChat(ctx, cs.historyID, cs.visible()); err != nil {
			s.logger.Warn("Failed to save chat transcript", zap.String("history_id", cs.historyID), zap.Error(err))
		}
	}
	return writeFrame(conn, WSReply{Type: FrameDone, Payload: &WSReplyPayload{Text: reply.String()}})
}

func writeFrame(conn *websocket.Conn, f WSReply) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(f)
}
