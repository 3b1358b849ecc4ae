// ABOUTME: WebSocket transport service; one text frame carries one command line
// ABOUTME: Shares the session loop with the telnet listener

package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/coven-keep/internal/auth"
	"github.com/2389/coven-keep/internal/service"
	"github.com/2389/coven-keep/internal/store"
)

const wsWriteTimeout = 10 * time.Second

// wsConn adapts a websocket connection to session.Conn.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *wsConn) Close() error         { return c.conn.Close() }
func (c *wsConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *wsConn) readLine() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage {
			return strings.TrimRight(string(data), "\r\n"), nil
		}
	}
}

// WebSocketService serves the session loop over WebSocket at /ws.
type WebSocketService struct {
	gw       *Gateway
	addr     string
	upgrader websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
	addrLn net.Addr
	done   chan struct{}
	ctx    context.Context
}

var _ service.Service = (*WebSocketService)(nil)

// NewWebSocketService creates the WebSocket service for addr.
func NewWebSocketService(gw *Gateway, addr string) *WebSocketService {
	return &WebSocketService{
		gw:   gw,
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOrigin,
		},
	}
}

// Name returns the service name.
func (s *WebSocketService) Name() string { return ServiceWebSocket }

// Running reports whether the HTTP server is serving.
func (s *WebSocketService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

// Addr returns the bound address, or nil when stopped.
func (s *WebSocketService) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrLn
}

// Start begins serving.
func (s *WebSocketService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return service.ErrAlreadyRunning
	}

	ln, err := s.gw.listen(s.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.addrLn = ln.Addr()
	s.ctx = context.WithoutCancel(ctx)
	s.done = make(chan struct{})

	server, done := s.server, s.done
	s.gw.logger.Info("websocket listener started", "addr", ln.Addr().String())
	go func() {
		defer close(done)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.gw.logger.Error("websocket server failed", "error", err)
		}
	}()
	return nil
}

// handleWebSocket upgrades the request and runs the session loop. When
// token login is enabled a request carrying a token is authenticated
// before the upgrade; a bad token is refused with 401.
func (s *WebSocketService) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var actor *store.Actor
	if s.gw.tokens != nil {
		token, err := auth.TokenFromRequest(r)
		switch {
		case errors.Is(err, auth.ErrMissingToken):
		case err != nil:
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		default:
			actor, err = s.gw.authenticateToken(r.Context(), token)
			if err != nil {
				s.gw.logger.Info("token login failed", "remote_addr", r.RemoteAddr, "error", err)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.gw.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxLineBytes)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	wc := &wsConn{conn: conn}
	s.gw.serve(ctx, wc, "websocket", wc.readLine, actor)
}

// Stop stops accepting new connections. Established sessions stay up.
func (s *WebSocketService) Stop(ctx context.Context) error {
	s.mu.Lock()
	server, done := s.server, s.done
	s.server = nil
	s.addrLn = nil
	s.mu.Unlock()

	if server == nil {
		return service.ErrNotRunning
	}
	// Close rather than Shutdown: hijacked websocket connections are not
	// tracked by the server and are owned by their sessions.
	if err := server.Close(); err != nil {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.gw.logger.Info("websocket listener stopped")
	return nil
}

// sameOrigin accepts requests without an Origin header and browser requests
// whose Origin host matches the Host being dialed exactly.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients don't send Origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
