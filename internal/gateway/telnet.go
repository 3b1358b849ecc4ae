// ABOUTME: The core line-oriented TCP listener service
// ABOUTME: Each accepted connection gets its own goroutine running the session loop

package gateway

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/2389/coven-keep/internal/service"
)

const maxLineBytes = 8 * 1024

// lineConn adapts a net.Conn to session.Conn with CRLF-terminated lines.
type lineConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func (c *lineConn) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := strings.ReplaceAll(msg, "\n", "\r\n") + "\r\n"
	_, err := c.conn.Write([]byte(text))
	return err
}

func (c *lineConn) Close() error         { return c.conn.Close() }
func (c *lineConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// scanLines returns a lineReader over r that strips trailing CR.
func scanLines(r *bufio.Scanner) lineReader {
	return func() (string, error) {
		if !r.Scan() {
			if err := r.Err(); err != nil {
				return "", err
			}
			return "", net.ErrClosed
		}
		return strings.TrimRight(r.Text(), "\r"), nil
	}
}

// TelnetService accepts line-oriented TCP connections.
type TelnetService struct {
	gw   *Gateway
	addr string

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

var _ service.Service = (*TelnetService)(nil)

// NewTelnetService creates the listener service for addr.
func NewTelnetService(gw *Gateway, addr string) *TelnetService {
	return &TelnetService{gw: gw, addr: addr}
}

// Name returns the service name.
func (s *TelnetService) Name() string { return ServiceTelnet }

// Running reports whether the listener is accepting.
func (s *TelnetService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// Addr returns the bound listener address, or nil when stopped.
func (s *TelnetService) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start opens the listener and begins accepting.
func (s *TelnetService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return service.ErrAlreadyRunning
	}

	ln, err := s.gw.listen(s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.done = make(chan struct{})

	s.gw.logger.Info("telnet listener started", "addr", ln.Addr().String())
	go s.accept(context.WithoutCancel(ctx), ln, s.done)
	return nil
}

func (s *TelnetService) accept(ctx context.Context, ln net.Listener, done chan struct{}) {
	defer close(done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.gw.logger.Error("telnet accept failed", "error", err)
			}
			return
		}
		go s.handle(ctx, conn)
	}
}

func (s *TelnetService) handle(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), maxLineBytes)
	s.gw.serve(ctx, &lineConn{conn: conn}, "telnet", scanLines(scanner), nil)
}

// Stop closes the listener. Sessions already connected stay up.
func (s *TelnetService) Stop(ctx context.Context) error {
	s.mu.Lock()
	ln, done := s.listener, s.done
	s.listener = nil
	s.mu.Unlock()

	if ln == nil {
		return service.ErrNotRunning
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.gw.logger.Info("telnet listener stopped")
	return nil
}
