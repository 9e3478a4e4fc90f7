// Package p2p establishes the direct channel between a host and a guest.
// The rendezvous service only maps a room code to the host's address;
// application data never passes through it.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quizsnap/internal/domain"
)

const (
	roomIDLength        = 6
	maxRegisterAttempts = 5
	channelPath         = "/p2p"
)

// Rendezvous maps room codes to host channel addresses.
type Rendezvous interface {
	// Register fails with domain.ErrRoomTaken if the code is in use.
	Register(ctx context.Context, roomID, addr string) error
	// Resolve fails with domain.ErrRoomNotFound if nothing is registered.
	Resolve(ctx context.Context, roomID string) (string, error)
	// Unregister removes roomID only while it still maps to addr, so a late
	// call from an expired host cannot drop a newer registration.
	Unregister(ctx context.Context, roomID, addr string) error
}

// Network opens and joins rooms.
type Network struct {
	rendezvous    Rendezvous
	listenAddr    string
	advertiseHost string
	newRoomID     func() string
	dialer        *websocket.Dialer
	log           zerolog.Logger
}

type Option func(*Network)

// WithListenAddr sets the address hosts listen on for their guest.
func WithListenAddr(addr string) Option {
	return func(n *Network) { n.listenAddr = addr }
}

// WithAdvertiseHost sets the host name guests dial.
func WithAdvertiseHost(host string) Option {
	return func(n *Network) { n.advertiseHost = host }
}

// WithRoomIDs replaces the room code generator.
func WithRoomIDs(gen func() string) Option {
	return func(n *Network) { n.newRoomID = gen }
}

func WithLogger(log zerolog.Logger) Option {
	return func(n *Network) { n.log = log }
}

func NewNetwork(rendezvous Rendezvous, opts ...Option) *Network {
	n := &Network{
		rendezvous:    rendezvous,
		listenAddr:    ":0",
		advertiseHost: "localhost",
		newRoomID:     NewRoomID,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewRoomID returns a six digit code. Collisions are possible and surface
// as domain.ErrRoomTaken at registration.
func NewRoomID() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

// ValidRoomID reports whether id is six ASCII letters or digits.
func ValidRoomID(id string) bool {
	if len(id) != roomIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

// OpenRoom starts listening for a guest and registers a fresh room code.
// The returned handle is awaiting its peer.
func (n *Network) OpenRoom(ctx context.Context) (*Handle, error) {
	ln, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen for peer: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	hostPort := net.JoinHostPort(n.advertiseHost, strconv.Itoa(port))

	h := newHandle(n.log)
	h.host = true
	h.listener = ln
	h.rendezvous = n.rendezvous

	var roomID string
	for attempt := 0; attempt < maxRegisterAttempts; attempt++ {
		candidate := n.newRoomID()
		addr := (&url.URL{
			Scheme:   "ws",
			Host:     hostPort,
			Path:     channelPath,
			RawQuery: url.Values{"room": {candidate}}.Encode(),
		}).String()

		err = n.rendezvous.Register(ctx, candidate, addr)
		if err == nil {
			roomID = candidate
			h.addr = addr
			break
		}
		if errors.Is(err, domain.ErrRoomTaken) {
			n.log.Debug().Str("room", candidate).Msg("room code taken, retrying")
			continue
		}
		_ = ln.Close()
		return nil, signallingError(err)
	}
	if roomID == "" {
		_ = ln.Close()
		return nil, fmt.Errorf("open room after %d attempts: %w", maxRegisterAttempts, domain.ErrRoomTaken)
	}
	h.roomID = roomID

	mux := http.NewServeMux()
	mux.HandleFunc(channelPath, h.serveGuest)
	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.log.Warn().Err(err).Str("room", roomID).Msg("peer listener stopped")
		}
	}()

	n.log.Info().Str("room", roomID).Str("addr", hostPort).Msg("room opened")
	return h, nil
}

// JoinRoom dials the host registered under roomID.
func (n *Network) JoinRoom(ctx context.Context, roomID string) (*Handle, error) {
	if !ValidRoomID(roomID) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRoomID, roomID)
	}

	addr, err := n.rendezvous.Resolve(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, err
		}
		return nil, signallingError(err)
	}

	conn, resp, err := n.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, fmt.Errorf("%w: room %s already has a guest", domain.ErrRoomNotFound, roomID)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrRoomNotFound, roomID, err)
	}

	h := newHandle(n.log)
	h.roomID = roomID
	h.attach(conn)
	n.log.Info().Str("room", roomID).Msg("joined room")
	return h, nil
}

func signallingError(err error) error {
	if errors.Is(err, domain.ErrSignallingUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrSignallingUnavailable, err)
}
