package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/pubsub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamEvent is one broadcast as seen on the event stream.
type StreamEvent struct {
	Type    string          `json:"type"`
	Tags    []event.Tag     `json:"tags,omitempty"`
	Message *event.Message  `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Time    time.Time       `json:"time"`
}

// NewStreamEvent renders e. Task and plugin lifecycle events refer to
// loop-owned objects and carry no data; other variants include their
// fields when they marshal cleanly.
func NewStreamEvent(e event.Event, at time.Time) StreamEvent {
	se := StreamEvent{Type: event.Name(e), Tags: e.Tags(), Time: at}
	if msg, ok := e.AgentMessage(); ok {
		se.Message = &msg
	}
	if event.HasTag(e, event.TagTask) || event.HasTag(e, event.TagPlugin) {
		return se
	}
	if data, err := json.Marshal(e); err == nil && string(data) != "{}" {
		se.Data = data
	}
	return se
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "event stream not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := uuid.NewString()
	log.Debug(log.CatHTTP, "event stream connected", "client", client)
	if m := s.deps.Metrics; m != nil {
		m.WSClients.Inc()
		defer m.WSClients.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events := s.deps.Events.Subscribe(ctx)

	// Reader: only control frames are expected; a read error ends the stream.
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug(log.CatHTTP, "event stream closed", "client", client)
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if ev.Type != pubsub.Emitted {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(NewStreamEvent(ev.Payload, ev.Timestamp)); err != nil {
				s.countMessage("write_error")
				return
			}
			s.countMessage("sent")
		}
	}
}

func (s *Server) countMessage(result string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.WSMessages.WithLabelValues(result).Inc()
	}
}
