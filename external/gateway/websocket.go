// Package gateway is the websocket front door for capture clients: one
// persistent connection per client, handshake-gated, with a read loop feeding
// the ingest service and a mutex-serialized writer for outbound frames.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/fault"
	"github.com/scribelab/scribed/internal/ingest"
	"github.com/scribelab/scribed/internal/protocol"
)

const (
	serverVersion = "scribed/1"
	maxFrameBytes = 1 << 20
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = 25 * time.Second
)

type Server struct {
	cfg      *config.Config
	svc      *ingest.Service
	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config, svc *ingest.Service) *Server {
	return &Server{
		cfg: cfg,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Capture clients run as browser extensions; origin allowlisting
			// happens at the deployment edge.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	c := &client{
		conn:    conn,
		machine: protocol.NewMachine(),
		svc:     s.svc,
	}
	slog.Info("capture client connected", "remote", r.RemoteAddr)
	c.run(r.Context())
}

// client is one capture connection. It implements ingest.Notifier so pipeline
// stages can push frames back; writes from the read loop and from pipeline
// goroutines serialize on writeMu.
type client struct {
	conn    *websocket.Conn
	machine *protocol.Machine
	svc     *ingest.Service

	writeMu sync.Mutex
}

func (c *client) run(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.pingLoop(stopPing)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("capture client disconnected", "meeting_id", c.machine.MeetingID())
			} else {
				// Abnormal close. The session stays in the registry so a
				// reconnect under the same meeting id resumes without loss.
				slog.Warn("capture connection lost, awaiting reconnect",
					"error", err, "meeting_id", c.machine.MeetingID())
			}
			return
		}
		c.handleFrame(ctx, data)
	}
}

func (c *client) handleFrame(ctx context.Context, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		slog.Debug("dropping malformed frame", "error", err)
		return
	}

	typ, deprecated, ok := protocol.Normalize(env.Type)
	if !ok {
		slog.Warn("dropping frame with unrecognized type", "type", env.Type)
		return
	}
	if deprecated {
		slog.Warn("deprecated message tag", "type", env.Type, "canonical", typ)
	}

	if err := c.machine.Admit(typ); err != nil {
		slog.Warn("frame rejected by connection state",
			"type", typ, "state", c.machine.State(), "error", err)
		if c.machine.State() != protocol.StateActive {
			c.sendAck(false, "handshake required")
		}
		return
	}

	if typ == protocol.TypeHandshake {
		c.completeHandshake(env)
		return
	}

	if err := c.svc.HandleEvent(ctx, typ, env); err != nil {
		// A bad event is dropped; the connection and session continue.
		if fault.ClassOf(err) == fault.InputRejected {
			slog.Debug("event rejected", "type", typ, "error", err)
		} else {
			slog.Error("event handling failed", "type", typ, "error", err)
		}
	}
}

func (c *client) completeHandshake(env protocol.Envelope) {
	if env.MeetingID == "" {
		c.sendAck(false, "handshake missing meeting id")
		return
	}
	if err := c.machine.Activate(env.MeetingID); err != nil {
		c.sendAck(false, err.Error())
		return
	}
	c.svc.Attach(env.MeetingID, c)
	slog.Info("handshake completed", "meeting_id", env.MeetingID)
	c.sendAck(true, "")
}

func (c *client) sendAck(accepted bool, message string) {
	c.Notify(protocol.TypeHandshakeAck, c.machine.MeetingID(), protocol.HandshakeAckPayload{
		Accepted:      accepted,
		ServerVersion: serverVersion,
		Message:       message,
	})
}

// Notify implements ingest.Notifier.
func (c *client) Notify(t protocol.Type, meetingID string, payload any) {
	data, err := protocol.Encode(t, meetingID, payload)
	if err != nil {
		slog.Error("failed to encode outbound frame", "error", err, "type", t)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("outbound frame write failed", "error", err, "type", t)
	}
}

func (c *client) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.machine.BeginClose()
	if meetingID := c.machine.MeetingID(); meetingID != "" {
		c.svc.Detach(meetingID, c)
	}
	_ = c.conn.Close()
	c.machine.MarkClosed()
}
