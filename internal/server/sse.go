package server

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quaymarket/parley/internal/feed"
	"github.com/quaymarket/parley/internal/models"
)

// sseMessage is the wire shape of a message inside an SSE event.
type sseMessage struct {
	ID        uint      `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// sseEnvelope is the validated event envelope streamed to clients. The feed
// is table-scoped; clients filter by room_id themselves.
type sseEnvelope struct {
	Table   string     `json:"table"`
	Op      feed.Op    `json:"op"`
	RoomID  string     `json:"room_id"`
	Message sseMessage `json:"message"`
}

// handleSSE bridges the change feed to an SSE stream. The subscription is
// released when the client disconnects.
func (s *Server) handleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
	c.Writer.Flush()

	sub := s.feed.Subscribe()
	defer sub.Close()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				// Feed shut down; tell the client to reconnect and
				// re-seed from history.
				writeSSE(c.Writer, "stale", map[string]string{"type": "stale"})
				c.Writer.Flush()
				return
			}
			writeSSE(c.Writer, "change", toEnvelope(ev))
			c.Writer.Flush()
		}
	}
}

func toEnvelope(ev feed.Event) sseEnvelope {
	return sseEnvelope{
		Table:   ev.Table,
		Op:      ev.Op,
		RoomID:  ev.RoomID,
		Message: toSSEMessage(ev.Record),
	}
}

func toSSEMessage(m models.Message) sseMessage {
	return sseMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
