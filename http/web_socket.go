package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	pacscodec "gitlab.com/medical-research/pacs-codec"
	"gitlab.com/medical-research/pacs-codec/cache"
)

// BaseRequest is the envelope of every websocket message from a client.
type BaseRequest struct {
	Subject string `json:"subject"`
}

// EventMessage is the envelope of every message pushed to a client.
type EventMessage struct {
	Subject string      `json:"subject"`
	Payload interface{} `json:"payload"`
}

// wsEvents upgrades the connection and serves the event protocol: clients
// send {"subject": ...} requests and receive tagged replies. Subscribing to
// prefetch events starts a push stream on the same connection.
func (s *Server) wsEvents(w http.ResponseWriter, r *http.Request) {
	s.WebSocketUpgrader.CheckOrigin = func(r *http.Request) bool { return true }

	ws, err := s.WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer ws.Close()

	s.wsReader(r, ws)
}

// wsReader listens for new messages being sent to our WebSocket endpoint.
func (s *Server) wsReader(r *http.Request, conn *websocket.Conn) {
	// Writes originate from this loop and from the event pump, so they go
	// through one channel to keep the connection's write side serialized.
	// writerDone closes when the writer exits, so senders never block
	// behind a dead connection.
	outbound := make(chan EventMessage, 64)
	done := make(chan struct{})
	writerDone := make(chan struct{})
	defer close(done)

	go func() {
		defer close(writerDone)
		for {
			select {
			case <-done:
				return
			case msg := <-outbound:
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("[http] websocket write: %v", err)
					return
				}
			}
		}
	}()

	send := func(msg EventMessage) bool {
		select {
		case outbound <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	var events chan cache.PrefetchEvent
	defer func() {
		if events != nil {
			s.unsubscribe(events)
		}
	}()

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			return
		}

		req := &BaseRequest{}
		if err := json.Unmarshal(p, req); err != nil {
			if !send(EventMessage{Subject: "error", Payload: "invalid request"}) {
				return
			}
			continue
		}

		switch req.Subject {
		case "cache-stats":
			if !send(EventMessage{Subject: "cache-stats", Payload: s.CacheService.Stats()}) {
				return
			}

		case "prefetch-status":
			if s.Prefetch == nil {
				if !send(EventMessage{Subject: "error", Payload: "prefetch is not configured"}) {
					return
				}
				continue
			}
			if !send(EventMessage{Subject: "prefetch-status", Payload: s.Prefetch.Stats()}) {
				return
			}

		case "subscribe-prefetch-events":
			if events != nil {
				continue
			}
			events = s.subscribe()
			go func(ch chan cache.PrefetchEvent) {
				for {
					select {
					case <-done:
						return
					case <-writerDone:
						return
					case ev := <-ch:
						if !send(EventMessage{Subject: "prefetch-event", Payload: ev}) {
							return
						}
					}
				}
			}(events)
			if !send(EventMessage{Subject: "subscribed", Payload: "prefetch-events"}) {
				return
			}

		case "invalidate-study":
			var inv struct {
				StudyInstanceUID string `json:"studyInstanceUID"`
			}
			if err := json.Unmarshal(p, &inv); err != nil || inv.StudyInstanceUID == "" {
				if !send(EventMessage{Subject: "error", Payload: "invalid request"}) {
					return
				}
				continue
			}
			if err := s.CacheService.InvalidateStudy(r.Context(), inv.StudyInstanceUID); err != nil {
				if !send(EventMessage{Subject: "error", Payload: pacscodec.ErrorMessage(err)}) {
					return
				}
				continue
			}
			if !send(EventMessage{Subject: "invalidated", Payload: inv.StudyInstanceUID}) {
				return
			}

		default:
			log.Printf("[http] websocket: unknown subject %q", req.Subject)
		}
	}
}
