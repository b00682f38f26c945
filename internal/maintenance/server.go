// Package maintenance implements the JSON-RPC 2.0 console used to inspect
// and reset the tuner over a local TCP connection.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/fmradiod/internal/control"
	"github.com/fmradiod/internal/device"
	"github.com/fmradiod/internal/status"
)

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeRadioError     = -32000
)

// Radio is what the console drives. Initialize is used by radio_reset.
type Radio interface {
	control.Radio
	Initialize(ctx context.Context) error
}

// Config holds the console settings.
type Config struct {
	Host              string
	Port              int
	AllowedCIDRs      []string // empty allows everyone
	ConnectionTimeout time.Duration
}

// Server handles maintenance TCP connections
type Server struct {
	config   Config
	radio    Radio
	actions  *control.ActionRegistry
	allowed  []*net.IPNet
	listener net.Listener

	ctx       context.Context
	cancel    context.CancelFunc
	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Request represents a JSON-RPC request over TCP
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  []string    `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response represents a JSON-RPC response over TCP
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC error object. Data carries the radio error code.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// ActionInfo describes one settable parameter.
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewServer creates a new maintenance server
func NewServer(cfg Config, rad Radio, actions *control.ActionRegistry) (*Server, error) {
	if rad == nil || actions == nil {
		return nil, fmt.Errorf("maintenance server needs a radio and an action registry")
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}

	allowed := make([]*net.IPNet, 0, len(cfg.AllowedCIDRs))
	for _, cidr := range cfg.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		allowed = append(allowed, network)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:   cfg,
		radio:    rad,
		actions:  actions,
		allowed:  allowed,
		ctx:      ctx,
		cancel:   cancel,
		stopChan: make(chan struct{}),
	}, nil
}

// Listen binds the console port.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	s.listener = listener
	log.Printf("Maintenance server listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe starts the maintenance TCP server
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until Close.
func (s *Server) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("maintenance server is not listening")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Maintenance: failed to accept connection: %v", err)
			continue
		}

		if !s.isAllowedConnection(conn) {
			log.Printf("Maintenance: rejected connection from %s (not in allowed CIDRs)", conn.RemoteAddr())
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection answers requests on one connection until the peer hangs
// up, stays idle past the timeout, or sends something unparseable.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(s.ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		conn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout))

		var req Request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || s.ctx.Err() != nil {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return
			}
			log.Printf("Maintenance: failed to decode request from %s: %v", conn.RemoteAddr(), err)
			encoder.Encode(errorResponse(CodeParseError, "Parse error", "", nil))
			return
		}

		response := s.processRequest(s.ctx, &req)
		if err := encoder.Encode(response); err != nil {
			log.Printf("Maintenance: failed to encode response: %v", err)
			return
		}
		log.Printf("Maintenance command processed: method=%s, client=%s", req.Method, conn.RemoteAddr())
	}
}

// processRequest dispatches one request.
func (s *Server) processRequest(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != "2.0" {
		return errorResponse(CodeInvalidRequest, "Invalid Request", "", req.ID)
	}

	var err error
	switch req.Method {
	case "status":
	case "actions":
		return &Response{JSONRPC: "2.0", Result: s.listActions(), ID: req.ID}
	case "refresh":
		err = s.radio.RefreshStationList(ctx)
	case "radio_reset":
		err = s.reset(ctx)
	case "set":
		var form url.Values
		form, err = pairs(req.Params)
		if err != nil {
			return errorResponse(CodeInvalidParams, err.Error(), device.Code(err), req.ID)
		}
		err = s.actions.ApplyForm(ctx, form)
	default:
		return errorResponse(CodeMethodNotFound, "Method not found", "", req.ID)
	}
	if err != nil {
		return errorResponse(CodeRadioError, err.Error(), device.Code(err), req.ID)
	}

	st, err := s.radio.Status(ctx)
	if err != nil {
		return errorResponse(CodeRadioError, err.Error(), device.Code(err), req.ID)
	}
	return &Response{JSONRPC: "2.0", Result: status.NewReport(st), ID: req.ID}
}

// reset stops both workers and re-runs initialization.
func (s *Server) reset(ctx context.Context) error {
	if err := s.radio.SetPower(false); err != nil {
		return err
	}
	if err := s.radio.SetRDS(false); err != nil {
		return err
	}
	return s.radio.Initialize(ctx)
}

func (s *Server) listActions() []ActionInfo {
	list := s.actions.List()
	out := make([]ActionInfo, 0, len(list))
	for _, a := range list {
		out = append(out, ActionInfo{Name: a.GetName(), Description: a.GetDescription()})
	}
	return out
}

// pairs turns ["tune", "101.1", "seek", "up"] into form values.
func pairs(params []string) (url.Values, error) {
	if len(params)%2 != 0 {
		return nil, fmt.Errorf("params must be name/value pairs: %w", device.ErrInvalidParameter)
	}
	form := url.Values{}
	for i := 0; i < len(params); i += 2 {
		form.Set(params[i], params[i+1])
	}
	return form, nil
}

func errorResponse(code int, message, data string, id interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      id,
	}
}

// isAllowedConnection checks if the connection is from an allowed CIDR
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

// Close shuts down the maintenance server and waits for open connections.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.cancel()
		if s.listener != nil {
			err = s.listener.Close()
		}
	})
	s.wg.Wait()
	return err
}
