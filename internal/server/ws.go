package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quaymarket/parley/internal/chat"
	"github.com/quaymarket/parley/internal/feed"
	"github.com/quaymarket/parley/internal/identity"
	"github.com/quaymarket/parley/internal/models"
	"github.com/quaymarket/parley/internal/view"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is what the browser sends over the room websocket.
type clientFrame struct {
	Type    string `json:"type"` // "send", "focus", "blur", "switch"
	Content string `json:"content,omitempty"`
	RoomID  string `json:"room_id,omitempty"`
}

// serverFrame is what the server pushes to the browser.
type serverFrame struct {
	Type     string       `json:"type"` // "snapshot", "message_added", "message_updated", "error", "stale"
	RoomID   string       `json:"room_id,omitempty"`
	Message  *sseMessage  `json:"message,omitempty"`
	Messages []sseMessage `json:"messages,omitempty"`
	Error    string       `json:"error,omitempty"`
	Retry    bool         `json:"retryable,omitempty"`
}

// wsSession is one live room-view connection. The view task owns the message
// state; the session owns the socket and the focus flag.
type wsSession struct {
	server *Server
	conn   *websocket.Conn
	ident  *identity.Identity

	mu      sync.Mutex
	focused bool
}

func (ws *wsSession) write(f serverFrame) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if err := ws.conn.WriteJSON(f); err != nil {
		log.Printf("server: ws write to %s: %v", ws.ident.UserID, err)
	}
}

func (ws *wsSession) setFocused(v bool) {
	ws.mu.Lock()
	ws.focused = v
	ws.mu.Unlock()
}

func (ws *wsSession) isFocused() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.focused
}

// handleRoomWS upgrades to a websocket and drives one live room view:
// snapshot on open, streamed adds/updates from the view task, sends and
// focus events from the client. Closing the socket releases the view's feed
// subscription synchronously.
func (s *Server) handleRoomWS(c *gin.Context) {
	ident := currentIdentity(c)
	roomID := c.Param("id")

	room, err := s.directory.Get(c.Request.Context(), roomID)
	if err != nil {
		writeChatError(c, err)
		return
	}
	if !canAccess(ident, room) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "retryable": false})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("server: ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	session := &wsSession{server: s, conn: conn, ident: ident}

	v, err := view.New(view.Opts{
		Store: s.store,
		Feed:  s.feed,
		Callbacks: view.Callbacks{
			OnMessageAdded:   session.onAdded(ctx),
			OnMessageUpdated: session.onUpdated,
			OnStale: func(error) {
				session.write(serverFrame{Type: "stale"})
			},
		},
	})
	if err != nil {
		log.Printf("server: ws view: %v", err)
		conn.Close()
		return
	}
	defer v.Close()

	if err := v.Open(ctx, roomID); err != nil {
		session.write(serverFrame{Type: "error", Error: "history fetch failed", Retry: true})
		conn.Close()
		return
	}
	session.write(snapshotFrame(roomID, v.Snapshot()))

	go v.Run(ctx)

	session.readLoop(ctx, v)

	if err := s.presence.Blur(context.Background(), v.RoomID(), ident.UserID); err != nil {
		log.Printf("server: ws blur: %v", err)
	}
	conn.Close()
}

// onAdded streams the message and, while the viewer is focused, immediately
// marks inbound messages read.
func (ws *wsSession) onAdded(ctx context.Context) func(models.Message) {
	return func(m models.Message) {
		ws.write(serverFrame{Type: "message_added", RoomID: m.RoomID, Message: frameMessage(m)})
		if ws.isFocused() && m.SenderID != ws.ident.UserID {
			if _, err := ws.server.reads.MarkRead(ctx, m.RoomID, ws.ident.UserID); err != nil {
				log.Printf("server: ws mark read room %s: %v", m.RoomID, err)
			}
		}
	}
}

func (ws *wsSession) onUpdated(m models.Message) {
	ws.write(serverFrame{Type: "message_updated", RoomID: m.RoomID, Message: frameMessage(m)})
}

// readLoop consumes client frames until the socket closes or ctx is done.
func (ws *wsSession) readLoop(ctx context.Context, v *view.View) {
	s := ws.server
	for {
		var f clientFrame
		if err := ws.conn.ReadJSON(&f); err != nil {
			return
		}

		switch f.Type {
		case "send":
			msg, err := s.store.Send(ctx, v.RoomID(), ws.ident.UserID, f.Content)
			if err != nil {
				// The client keeps the draft and shows a retry affordance.
				ws.write(serverFrame{Type: "error", Error: "send failed", Retry: retryable(err)})
				continue
			}
			// Echo the acknowledged write directly; the feed will deliver
			// it again and the view dedups by id.
			v.Apply(feed.Event{Table: "message", Op: feed.OpInsert, RoomID: msg.RoomID, Record: *msg})

		case "focus":
			ws.setFocused(true)
			if err := s.presence.Focus(ctx, v.RoomID(), ws.ident.UserID); err != nil {
				log.Printf("server: ws focus: %v", err)
			}
			if _, err := s.reads.MarkRead(ctx, v.RoomID(), ws.ident.UserID); err != nil {
				log.Printf("server: ws mark read on focus: %v", err)
			}

		case "blur":
			ws.setFocused(false)
			if err := s.presence.Blur(ctx, v.RoomID(), ws.ident.UserID); err != nil {
				log.Printf("server: ws blur: %v", err)
			}

		case "switch":
			room, err := s.directory.Get(ctx, f.RoomID)
			if err != nil {
				ws.write(serverFrame{Type: "error", Error: "room not found", Retry: false})
				continue
			}
			if !canAccess(ws.ident, room) {
				ws.write(serverFrame{Type: "error", Error: "forbidden", Retry: false})
				continue
			}
			if err := v.Switch(ctx, room.ID); err != nil {
				ws.write(serverFrame{Type: "error", Error: "history fetch failed", Retry: true})
				continue
			}
			ws.write(snapshotFrame(room.ID, v.Snapshot()))
		}
	}
}

func retryable(err error) bool {
	var se *chat.StoreError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}

func snapshotFrame(roomID string, msgs []models.Message) serverFrame {
	out := make([]sseMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toSSEMessage(m))
	}
	return serverFrame{Type: "snapshot", RoomID: roomID, Messages: out}
}

func frameMessage(m models.Message) *sseMessage {
	sm := toSSEMessage(m)
	return &sm
}
