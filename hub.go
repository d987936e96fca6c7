package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSMessage represents a message from the client
type WSMessage struct {
	Action string `json:"action"` // step | new_game | set_model | autoplay | pause
	Roles  string `json:"roles,omitempty"`

	DiscussionRounds int            `json:"discussion_rounds,omitempty"`
	Model            string         `json:"model,omitempty"`
	Models           map[int]string `json:"models,omitempty"`
	PlayerID         string         `json:"player_id,omitempty"` // set_model target; empty is every seat
}

// Client represents a websocket connection and the seat it watches from
type Client struct {
	conn     *websocket.Conn
	viewerID string
	writeMu  sync.Mutex // Serialize writes to WebSocket (required by gorilla/websocket)
}

func (c *Client) write(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	LogWSMessage("OUT", c.viewerID, string(message))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Hub pushes every new snapshot to all connected clients, each projected
// to the client's viewer.
type Hub struct {
	clients    map[*websocket.Conn]*Client
	register   chan *Client
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	// latest is coalesced: a slow hub only ever sends the newest snapshot
	latestMu sync.Mutex
	latest   *GameState
	updated  chan struct{}

	// onMessage handles client commands; nil ignores them
	onMessage func(c *Client, msg WSMessage)

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn, 64),
		updated:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// stop signals the hub goroutine to exit and waits for it to finish
func (h *Hub) stop() {
	h.once.Do(func() { close(h.done) })
	h.wg.Wait()
}

// publish records s as the newest snapshot. It never blocks.
func (h *Hub) publish(s GameState) {
	h.latestMu.Lock()
	h.latest = &s
	h.latestMu.Unlock()

	select {
	case h.updated <- struct{}{}:
	default:
	}
}

func (h *Hub) snapshot() (GameState, bool) {
	h.latestMu.Lock()
	defer h.latestMu.Unlock()
	if h.latest == nil {
		return GameState{}, false
	}
	return *h.latest, true
}

func (h *Hub) sendToViewer(viewerID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.viewerID != viewerID {
			continue
		}
		if err := client.write(message); err != nil {
			log.Printf("WebSocket write error to viewer %q: %v", viewerID, err)
		}
	}
}

func (h *Hub) broadcastNotice(n Notice) {
	msg := encodeNotice(n)
	if msg == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if err := client.write(msg); err != nil {
			log.Printf("WebSocket write error: %v", err)
		}
	}
}

// start launches run; stop waits for it.
func (h *Hub) start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(ctx)
	}()
}

// run serves the hub until ctx is cancelled or stop is called.
func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.once.Do(func() { close(h.done) })
			h.closeAll()
			return
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected (viewer %q). Total: %d", client.viewerID, total)
			DebugLog("hub.register", "Viewer %q connected via WebSocket", client.viewerID)

			if s, ok := h.snapshot(); ok {
				if msg := encodeState(projectState(s, client.viewerID)); msg != nil {
					if err := client.write(msg); err != nil {
						log.Printf("WebSocket write error to viewer %q: %v", client.viewerID, err)
					}
				}
			}

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				DebugLog("hub.unregister", "Viewer %q disconnected", client.viewerID)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected. Total: %d", total)

		case <-h.updated:
			s, ok := h.snapshot()
			if !ok {
				continue
			}
			h.mu.Lock()
			for conn, client := range h.clients {
				msg := encodeState(projectState(s, client.viewerID))
				if msg == nil {
					continue
				}
				if err := client.write(msg); err != nil {
					log.Printf("WebSocket write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// handleWebSocket upgrades the connection and attaches it to the hub.
// ?viewer= selects the seat to watch from: a player id, "god", or empty
// for a spectator who sees public information only.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	viewerID := r.URL.Query().Get("viewer")
	DebugLog("handleWebSocket", "Viewer %q initiating WebSocket connection", viewerID)

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error for viewer %q: %v", viewerID, err)
		return
	}

	client := &Client{conn: conn, viewerID: viewerID}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				break
			}
			LogWSMessage("IN", viewerID, string(message))

			var msg WSMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				h.sendErrorNotice(viewerID, "malformed message")
				continue
			}
			if h.onMessage != nil {
				h.onMessage(client, msg)
			}
		}
	}()
}
