package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsReply is one message sent back per request. Error is set instead of
// the move fields when the request could not be served.
type wsReply struct {
	*MoveResponse
	Error string `json:"error,omitempty"`
}

// handleWS streams advice: each text message is a MoveRequest and gets one
// reply, in order. The connection stays open until the client closes it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	replies := make(chan wsReply, 8)
	done := make(chan struct{})
	go s.writePump(conn, replies, done)
	defer func() {
		close(replies)
		<-done
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var req MoveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			replies <- wsReply{Error: "decode request: " + err.Error()}
			continue
		}
		state, err := req.state()
		if err != nil {
			replies <- wsReply{Error: err.Error()}
			continue
		}
		resp, err := s.decide(r.Context(), &req, state)
		if err != nil {
			replies <- wsReply{Error: err.Error()}
			continue
		}
		replies <- wsReply{MoveResponse: &resp}
	}
}

func (s *Server) writePump(conn *websocket.Conn, replies <-chan wsReply, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case reply, ok := <-replies:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(reply); err != nil {
				s.logger.Warn("websocket write", "error", err)
				// Keep draining so the reader never blocks on a dead peer.
				for range replies {
				}
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				for range replies {
				}
				return
			}
		}
	}
}
