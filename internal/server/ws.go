package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/bus"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	maxFrameSize = 16 * 1024
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a websocket to bus.Endpoint. gorilla/websocket allows one
// concurrent writer, so every write takes mu.
type wsConn struct {
	*websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

// Send writes one frame as JSON.
func (c *wsConn) Send(f bus.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.Conn.WriteJSON(f); err != nil {
		return errors.Wrap(bus.ErrConnectionLost, err.Error())
	}
	return nil
}

// Close sends a normal close frame and closes the socket. Safe to call twice.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.WriteCloseSafe(websocket.CloseNormalClosure, "")
		err = c.Conn.Close()
	})
	return err
}

func (c *wsConn) WritePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *wsConn) WriteCloseSafe(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(writeTimeout))
}

// handleWS attaches a party to a session.
//
// Protocol:
//
//	party → server:  {"type": "message", "content": "..."}
//	server → party:  {"type": "connected" | "seller_online" | "seller_offline" |
//	                  "message" | "ai_response" | "session_ended" | "error", "payload": ...}
//
// session_ended is the last frame; the server closes the socket after it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	role, err := bus.ParseRole(r.PathValue("role"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		writeJSONError(w, err.Error(), statusFor(err))
		return
	}

	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	raw.SetReadLimit(maxFrameSize)
	conn := &wsConn{Conn: raw}
	log := s.log.WithSession(id).With("role", role, "peer", r.RemoteAddr)

	s.connMu.Lock()
	s.conns[conn] = true
	s.connMu.Unlock()
	untrack := func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
	}

	if err := s.bus.Attach(id, role, conn); err != nil {
		untrack()
		if !errors.Is(err, bus.ErrSessionEnded) {
			conn.Send(bus.Frame{Type: bus.FrameError, Payload: map[string]string{"message": "session not found"}})
			conn.Close()
		}
		log.Debug("attach refused", "error", err)
		return
	}
	log.Info("party connected")

	defer func() {
		s.bus.Detach(id, role, conn)
		conn.Close()
		untrack()
		log.Info("party disconnected")
	}()

	raw.SetReadDeadline(time.Now().Add(readTimeout))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var in bus.InboundFrame
		if err := raw.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("read error", "error", err)
			}
			return
		}
		raw.SetReadDeadline(time.Now().Add(readTimeout))

		switch in.Type {
		case "message":
			if err := s.bus.Receive(id, role, in.Content); err != nil {
				conn.Send(bus.Frame{Type: bus.FrameError, Payload: map[string]string{"message": err.Error()}})
			}
		default:
			conn.Send(bus.Frame{Type: bus.FrameError, Payload: map[string]string{"message": "unsupported frame type " + in.Type}})
		}
	}
}

// heartbeatLoop pings every socket so idle parties are noticed.
func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastPing()
		}
	}
}

func (s *Server) broadcastPing() {
	s.connMu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connMu.Unlock()

	for _, c := range conns {
		if err := c.WritePing(); err != nil {
			// The read loop sees the closed socket and detaches the party.
			c.Conn.Close()
		}
	}
}

// closeAllWS closes every socket on shutdown.
func (s *Server) closeAllWS() {
	s.connMu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connMu.Unlock()
	for _, c := range conns {
		c.closeOnce.Do(func() {
			c.WriteCloseSafe(websocket.CloseGoingAway, "server shutdown")
			c.Conn.Close()
		})
	}
}

// WSConnectionCount returns the number of open party sockets.
func (s *Server) WSConnectionCount() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.conns)
}
