package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"channel-analytics/internal/config"
)

// ChannelPath is the websocket endpoint the handshake page connects to.
const ChannelPath = "/auth/channel"

const channelBufferSize = 8

// ChannelServer is a local websocket endpoint that lets the handshake page,
// running in the system browser, deliver its auth_success message back to a
// headless client. The handshake Origin header is the message origin; only
// allow-listed origins are upgraded.
type ChannelServer struct {
	addr     string
	origins  *OriginAllowList
	upgrader websocket.Upgrader

	out  chan Message
	done chan struct{}

	mu       sync.Mutex
	closed   bool
	listener net.Listener
	server   *http.Server
	conns    map[*websocket.Conn]struct{}
	wg       sync.WaitGroup
}

// NewChannelServer creates a server that will listen on addr once started.
func NewChannelServer(addr string, origins *OriginAllowList) *ChannelServer {
	s := &ChannelServer{
		addr:    addr,
		origins: origins,
		out:     make(chan Message, channelBufferSize),
		done:    make(chan struct{}),
		conns:   make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: config.ChannelHandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			return s.origins.Allows(r.Header.Get("Origin"))
		},
	}
	return s
}

// Start binds the listener and serves in the background.
func (s *ChannelServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("channel server closed")
	}
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(ChannelPath, s)
	s.listener = ln
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: config.ChannelHandshakeTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("auth channel server stopped", slog.String("error", err.Error()))
		}
	}()
	slog.Debug("auth channel listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *ChannelServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the websocket URL of the channel endpoint.
func (s *ChannelServer) URL() string {
	return "ws://" + s.Addr() + ChannelPath
}

// Messages returns the inbound messages. The channel is never closed; stop
// reading when the server is closed.
func (s *ChannelServer) Messages() <-chan Message {
	return s.out
}

// ServeHTTP upgrades the connection and forwards each text frame as a Message.
func (s *ChannelServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	origin := r.Header.Get("Origin")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("auth channel upgrade refused",
			slog.String("origin", origin),
			slog.String("error", err.Error()),
		)
		return
	}

	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	conn.SetReadLimit(config.ChannelMaxMessageBytes)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !isExpectedCloseError(err) {
				slog.Debug("auth channel read failed", slog.String("error", err.Error()))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		select {
		case s.out <- Message{Origin: origin, Data: data}:
		case <-s.done:
			return
		}
	}
}

// Close stops the listener, drops live connections and waits for their
// handlers to return. It is safe to call more than once.
func (s *ChannelServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	server := s.server
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	var err error
	if server != nil {
		err = server.Close()
	}
	for _, conn := range conns {
		_ = conn.Close()
	}
	s.wg.Wait()
	return err
}

func (s *ChannelServer) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *ChannelServer) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
	s.wg.Done()
}

// The handshake page closes the socket right after sending its message.
func isExpectedCloseError(err error) bool {
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
