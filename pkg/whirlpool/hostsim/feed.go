package hostsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// AccountKind distinguishes which map in Store an AccountChangeEvent refers
// to.
type AccountKind string

const (
	AccountKindPool      AccountKind = "pool"
	AccountKindPosition  AccountKind = "position"
	AccountKindTickArray AccountKind = "tickArray"
)

// AccountChangeEvent is what the feed broadcasts whenever Store mutates an
// account, playing the role of the accountNotification payload in the
// teacher's WebSocketClient/accountSubscribe flow -- except here the
// "chain" is this process's own Store, so there is no JSON-RPC subscribe
// handshake, just a direct broadcast to every connected Subscriber.
type AccountChangeEvent struct {
	Key  string      `json:"key"`
	Kind AccountKind `json:"kind"`
	Slot uint64      `json:"slot,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub is a local, loopback-only websocket broadcaster: it accepts
// connections on /accounts and pushes every AccountChangeEvent to all of
// them, the host-simulation harness's analogue of the real validator's
// account-subscription feed.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	server  *http.Server
	addr    string
}

// NewHub starts a Hub listening on an OS-assigned loopback port and returns
// it once the listener is accepting connections. Call Close to shut it
// down.
func NewHub() (*Hub, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("hostsim: failed to open feed listener: %w", err)
	}

	h := &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		addr:    ln.Addr().String(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/accounts", h.handleConn)
	h.server = &http.Server{Handler: mux}

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("hostsim: feed server stopped: %v", err)
		}
	}()

	return h, nil
}

// URL returns the websocket URL a Subscriber can Dial.
func (h *Hub) URL() string {
	return "ws://" + h.addr + "/accounts"
}

func (h *Hub) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hostsim: feed upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// Drain and discard anything the subscriber sends; this feed is
	// broadcast-only, but the read loop must run so Close frames surface.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends an account-change event to every connected subscriber.
func (h *Hub) Broadcast(evt AccountChangeEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("hostsim: failed to marshal account change event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("hostsim: failed to push account change event: %v", err)
		}
	}
}

// Close shuts the feed server down.
func (h *Hub) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}

// Subscriber connects to a Hub and invokes a handler for every account
// change it receives, mirroring WebSocketClient's connect/readMessages
// loop.
type Subscriber struct {
	conn    *websocket.Conn
	handler func(AccountChangeEvent)
	done    chan struct{}
}

// Subscribe dials a Hub's feed and starts delivering events to handler on a
// background goroutine until Close is called.
func Subscribe(url string, handler func(AccountChangeEvent)) (*Subscriber, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("hostsim: failed to connect to feed: %w", err)
	}

	s := &Subscriber{conn: conn, handler: handler, done: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

func (s *Subscriber) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var evt AccountChangeEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Printf("hostsim: failed to parse account change event: %v", err)
			continue
		}
		s.handler(evt)
	}
}

// Close disconnects the subscriber.
func (s *Subscriber) Close() error {
	return s.conn.Close()
}
