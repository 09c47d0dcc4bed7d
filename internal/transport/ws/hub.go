package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Message is the WebSocket envelope format. Type is one of the event names
// the service layer defines (service.EventTokenRotated and friends).
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages WebSocket connections for attendance sessions: any number of
// display surfaces per session plus one instructor dashboard connection.
type Hub struct {
	displayConns    map[string]map[*Connection]struct{} // sessionID -> conns
	instructorConns map[string]*Connection              // sessionID -> conn

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// Connection represents a WebSocket connection
type Connection struct {
	SessionID    string
	IsInstructor bool
	Send         chan []byte
	Hub          *Hub
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	SessionID    string
	ToInstructor bool
	Message      *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		displayConns:    make(map[string]map[*Connection]struct{}),
		instructorConns: make(map[string]*Connection),
		register:        make(chan *Connection),
		unregister:      make(chan *Connection),
		broadcast:       make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if conn.IsInstructor {
				// A session has one dashboard connection. A reconnect displaces
				// the old one; close its channel so its write pump exits now
				// rather than on the next failed ping.
				if displaced, ok := h.instructorConns[conn.SessionID]; ok && displaced != conn {
					close(displaced.Send)
				}
				h.instructorConns[conn.SessionID] = conn
				log.Printf("Instructor connected to session %s", conn.SessionID)
			} else {
				if h.displayConns[conn.SessionID] == nil {
					h.displayConns[conn.SessionID] = make(map[*Connection]struct{})
				}
				h.displayConns[conn.SessionID][conn] = struct{}{}
				log.Printf("Display connected to session %s", conn.SessionID)
			}
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if conn.IsInstructor {
				if existing, ok := h.instructorConns[conn.SessionID]; ok && existing == conn {
					delete(h.instructorConns, conn.SessionID)
					close(conn.Send)
					log.Printf("Instructor disconnected from session %s", conn.SessionID)
				}
			} else {
				if displays, ok := h.displayConns[conn.SessionID]; ok {
					if _, ok := displays[conn]; ok {
						delete(displays, conn)
						close(conn.Send)
						log.Printf("Display disconnected from session %s", conn.SessionID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)

			if msg.ToInstructor {
				if conn, ok := h.instructorConns[msg.SessionID]; ok {
					select {
					case conn.Send <- data:
					default:
						// Drop message if buffer full
					}
				}
			} else {
				for conn := range h.displayConns[msg.SessionID] {
					select {
					case conn.Send <- data:
					default:
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastToDisplays sends a message to every display of a session
// (implements service.Broadcaster)
func (h *Hub) BroadcastToDisplays(sessionID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Message: &Message{
			Type:    msgType,
			Payload: data,
		},
	}
}

// BroadcastToInstructor sends a message to the session's instructor
// dashboard (implements service.Broadcaster)
func (h *Hub) BroadcastToInstructor(sessionID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast <- &BroadcastMessage{
		SessionID:    sessionID,
		ToInstructor: true,
		Message: &Message{
			Type:    msgType,
			Payload: data,
		},
	}
}
