package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/session"
)

const (
	heartbeatInterval = 15 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

func initialEvent(sess *session.Session) events.SessionEvent {
	return events.SessionEvent{
		SessionID: sess.ID(),
		Type:      events.TypeSessionUpdate,
		Ts:        time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   sess.Snapshot(),
	}
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	eventsChan := s.broker.Subscribe(ctx, sess.ID())
	sendSSE(w, initialEvent(sess))
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-eventsChan:
			if !ok {
				return
			}
			sendSSE(w, event)
			flusher.Flush()
			if event.Type == events.TypeSessionClosed {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, event events.SessionEvent) {
	payload, _ := json.Marshal(event.Payload)
	fmt.Fprintf(w, "id: %s:%d\n", event.SessionID, event.Seq)
	fmt.Fprintf(w, "event: %s\n", event.Type)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func (s *Server) streamWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Inbound frames are ignored; reading surfaces the peer closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[api] websocket read: %v", err)
				}
				return
			}
		}
	}()

	eventsChan := s.broker.Subscribe(ctx, sess.ID())
	if err := writeWS(conn, initialEvent(sess)); err != nil {
		return
	}

	ping := time.NewTicker(heartbeatInterval)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-eventsChan:
			if !ok {
				return
			}
			if err := writeWS(conn, event); err != nil {
				return
			}
			if event.Type == events.TypeSessionClosed {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(wsWriteTimeout))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeWS(conn *websocket.Conn, event events.SessionEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(event)
}
