package p2p

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quizsnap/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 32
	eventBuffer    = 64
)

// EventKind is a connection lifecycle transition.
type EventKind int

const (
	// EventConnected means the channel can send and receive.
	EventConnected EventKind = iota + 1
	// EventData carries one inbound application message.
	EventData
	// EventClosed means the remote side went away or the network failed.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventData:
		return "data"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered on Handle.Events in the order it happened.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Handle is one end of a peer channel.
type Handle struct {
	roomID string
	addr   string
	host   bool
	log    zerolog.Logger

	events    chan Event
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	conn      *websocket.Conn
	attached  bool
	connected bool

	listener   net.Listener
	server     *http.Server
	rendezvous Rendezvous
	upgrader   websocket.Upgrader
}

func newHandle(log zerolog.Logger) *Handle {
	return &Handle{
		log:    log,
		events: make(chan Event, eventBuffer),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// RoomID is the code the handle was opened or joined with.
func (h *Handle) RoomID() string { return h.roomID }

// IsHost reports whether this handle opened the room.
func (h *Handle) IsHost() bool { return h.host }

// Events streams lifecycle and data events.
func (h *Handle) Events() <-chan Event { return h.events }

// Done is closed by Close.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Connected reports whether a peer is currently attached.
func (h *Handle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// Send queues data for the peer without blocking. It reports false when the
// channel is down or the outbound buffer is full; nothing is retried.
func (h *Handle) Send(data []byte) bool {
	if !h.Connected() {
		return false
	}
	select {
	case h.send <- data:
		return true
	default:
		h.log.Warn().Str("room", h.roomID).Msg("peer send buffer full, dropping message")
		return false
	}
}

// Close tears down the channel, stops the host listener and removes the
// room registration. Safe to call more than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		conn := h.conn
		h.connected = false
		h.attached = true // refuse late guests
		h.mu.Unlock()

		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
		if h.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = h.server.Shutdown(ctx)
			cancel()
		}
		if h.host && h.rendezvous != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := h.rendezvous.Unregister(ctx, h.roomID, h.addr); err != nil {
				h.log.Debug().Err(err).Str("room", h.roomID).Msg("unregister room")
			}
			cancel()
		}
	})
	return nil
}

func (h *Handle) serveGuest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("room") != h.roomID {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}

	h.mu.Lock()
	if h.attached {
		h.mu.Unlock()
		http.Error(w, "room already has a guest", http.StatusConflict)
		return
	}
	h.attached = true
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("room", h.roomID).Msg("peer upgrade failed")
		h.mu.Lock()
		h.attached = false
		h.mu.Unlock()
		return
	}
	h.attach(conn)
}

func (h *Handle) attach(conn *websocket.Conn) {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		_ = conn.Close()
		return
	default:
	}
	h.conn = conn
	h.attached = true
	h.connected = true
	h.mu.Unlock()

	stop := make(chan struct{})
	go h.writePump(conn, stop)
	h.emit(Event{Kind: EventConnected})
	go h.readPump(conn, stop)
}

func (h *Handle) readPump(conn *websocket.Conn, stop chan struct{}) {
	var readErr error
	defer func() {
		close(stop)
		_ = conn.Close()
		h.mu.Lock()
		h.connected = false
		h.mu.Unlock()
		h.emit(Event{Kind: EventClosed, Err: fmt.Errorf("%w: %v", domain.ErrConnectionLost, readErr)})
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("room", h.roomID).Msg("peer read error")
			}
			return
		}
		h.emit(Event{Kind: EventData, Data: data})
	}
}

func (h *Handle) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-h.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug().Err(err).Str("room", h.roomID).Msg("peer write error")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Handle) emit(ev Event) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.events <- ev:
	case <-h.done:
	}
}
