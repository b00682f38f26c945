// Package httpd is the daemon's minimal HTTP front end: one request per
// connection, an ordered chain of content handlers, and a bounded pool of
// connection workers.
package httpd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/fmradiod/internal/metrics"
)

// Config configures a Server.
type Config struct {
	Host           string
	Port           int // 0 picks a free port
	ServerHeader   string
	MaxConnections int
	ReadTimeout    time.Duration
	MaxBodyBytes   int
	AllowedCIDRs   []string // empty allows everyone
}

// Server accepts connections and serves exactly one request on each.
type Server struct {
	cfg      Config
	manager  *ContentManager
	metrics  *metrics.Metrics
	allowed  []*net.IPNet
	listener net.Listener

	sem      chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer validates cfg and creates a server for manager.
func NewServer(cfg Config, manager *ContentManager, m *metrics.Metrics) (*Server, error) {
	if manager == nil {
		return nil, errors.New("httpd: nil content manager")
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 16
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 * 1024
	}

	var allowed []*net.IPNet
	for _, cidr := range cfg.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		allowed = append(allowed, network)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		manager:  manager,
		metrics:  m,
		allowed:  allowed,
		sem:      make(chan struct{}, cfg.MaxConnections),
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// reuseAddr lets the daemon rebind its port right after a restart.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockErr = fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	lc := net.ListenConfig{Control: reuseAddr}
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("HTTP server listening on %s (handlers: %v)", listener.Addr(), s.manager.Names())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds and serves until Close.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve runs the accept loop. A worker slot is taken before accepting, so a
// full pool leaves new connections waiting in the kernel backlog.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("httpd: Serve called before Listen")
	}

	for {
		select {
		case s.sem <- struct{}{}:
		case <-s.stopChan:
			return nil
		}

		conn, err := s.listener.Accept()
		if err != nil {
			<-s.sem
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Failed to accept connection: %v", err)
			continue
		}

		if !s.isAllowedConnection(conn) {
			log.Printf("Rejected connection from %s (not in allowed CIDRs)", conn.RemoteAddr())
			s.metrics.RecordRejected()
			conn.Close()
			<-s.sem
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection serves one request and closes the connection.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	// Unblock a pending read or write when the server closes.
	stop := context.AfterFunc(s.ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	id := uuid.NewString()
	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}

	req, err := ReadRequest(bufio.NewReader(conn), s.cfg.MaxBodyBytes)
	var resp *Response
	handler := "error"
	switch {
	case err == nil:
		req.RemoteAddr = conn.RemoteAddr().String()
		req.ConnID = id
		req.ctx = s.ctx
		resp, handler = s.manager.HandleRequest(req)
	case errors.Is(err, io.EOF):
		return
	case errors.Is(err, ErrNotImplemented):
		resp = textResponse(http.StatusNotImplemented)
	default:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			log.Printf("HTTP[%s]: read timeout from %s", id, conn.RemoteAddr())
			return
		}
		log.Printf("HTTP[%s]: bad request from %s: %v", id, conn.RemoteAddr(), err)
		req = nil
		resp = textResponse(http.StatusBadRequest)
	}

	if s.cfg.ReadTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	if err := resp.writeTo(conn, req, s.cfg.ServerHeader); err != nil {
		log.Printf("HTTP[%s]: failed to write response: %v", id, err)
	}
	s.metrics.RecordRequest(handler, resp.Status)

	if req != nil {
		log.Printf("HTTP[%s]: %s %s %s -> %d (%s)", id, conn.RemoteAddr(), req.Method, req.URI, resp.Status, handler)
	}
}

// isAllowedConnection checks the peer against the allow-list.
func (s *Server) isAllowedConnection(conn net.Conn) bool {
	if len(s.allowed) == 0 {
		return true
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	clientIP := net.ParseIP(host)
	if clientIP == nil {
		return false
	}
	for _, network := range s.allowed {
		if network.Contains(clientIP) {
			return true
		}
	}
	return false
}

// Close stops accepting, cancels in-flight handlers' context and waits for
// the connection workers to finish.
func (s *Server) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.cancel()
		if s.listener != nil {
			err = s.listener.Close()
		}
	})
	s.wg.Wait()
	return err
}
