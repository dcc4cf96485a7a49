package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/logging"
)

// Dispatcher is implemented by internal/api.Boundary: it authorizes and
// executes one bound request and returns the reply to frame back to the
// client.
type Dispatcher interface {
	Dispatch(ctx context.Context, binding SessionBinding, req Request) Response
}

// Config configures transport selection. On POSIX the default is a Unix
// stream socket; on Windows, loopback TCP with an OS-allocated port.
type Config struct {
	SocketPath string // POSIX default transport
	TCPAddr    string // Windows default / opt-in transport ("127.0.0.1:0")
}

// Server is the IPC transport described in spec.md §4.F: framed,
// single-writer-per-connection, newline-delimited JSON. Grounded on the
// teacher's internal/ssh.Server{...}/New/Start(ctx) lifecycle shape (the
// construct/serve/graceful-shutdown idiom, not its SSH content).
type Server struct {
	cfg        Config
	token      string
	dispatcher Dispatcher

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New constructs a Server bound to a Dispatcher and the expected bearer
// token (minted by GenerateToken; the same token is handed to
// Singleton.Acquire, which persists it for clients).
func New(cfg Config, token string, dispatcher Dispatcher) *Server {
	return &Server{cfg: cfg, token: token, dispatcher: dispatcher}
}

// Endpoint reports the transport/address/port this server is bound to,
// for writing into endpoint.json. Call after Start has bound the
// listener (Listen).
func (s *Server) Endpoint() Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return Endpoint{}
	}
	if runtime.GOOS == "windows" || s.cfg.SocketPath == "" {
		addr := s.listener.Addr().(*net.TCPAddr)
		return Endpoint{Transport: TransportTCP, Address: addr.IP.String(), Port: addr.Port}
	}
	return Endpoint{Transport: TransportSocket, Address: s.cfg.SocketPath}
}

// Listen binds the configured transport without yet accepting
// connections, so the caller can read back Endpoint() before writing
// endpoint.json (avoiding a race where a client discovers the file
// before the listener is live).
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runtime.GOOS != "windows" && s.cfg.SocketPath != "" {
		_ = os.Remove(s.cfg.SocketPath)
		ln, err := net.Listen("unix", s.cfg.SocketPath)
		if err != nil {
			return fmt.Errorf("ipc: listen unix socket: %w", err)
		}
		if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
			logging.Error("ipc: chmod socket: %v", err)
		}
		s.listener = ln
		return nil
	}

	addr := s.cfg.TCPAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ipc: listen tcp: %w", err)
	}
	s.listener = ln
	return nil
}

// Start accepts connections until ctx is canceled. Each accepted
// connection runs in its own goroutine, one request at a time in
// request order (no pipelining interleave).
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.listener
		s.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("ipc: accept: %w", err)
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Stop closes the listener and waits (with a grace timeout) for
// in-flight connections to drain.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 64*1024), StreamLimitBytes)
	writer := bufio.NewWriter(conn)

	var binding *SessionBinding

	for reader.Scan() {
		line := reader.Bytes()
		if len(line) > MaxLineBytes {
			s.writeResponse(writer, errorResponse("", ErrFrameTooLarge, "request frame exceeds 4 MiB", ""))
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(writer, errorResponse("", ErrInvalidParams, "malformed JSON frame: "+err.Error(), ""))
			continue
		}

		if req.Token != s.token {
			s.writeResponse(writer, errorResponse(req.RequestID, ErrAuthenticationDenied, "bearer token mismatch", ""))
			continue
		}

		if req.Capability == "session" && req.Method == "bind" {
			b, err := bindFromParams(req)
			if err != nil {
				s.writeResponse(writer, errorResponse(req.RequestID, ErrInvalidParams, err.Error(), ""))
				continue
			}
			binding = &b
			s.writeResponse(writer, Response{RequestID: req.RequestID, OK: true, Result: map[string]any{"success": true, "session_id": b.SessionID}})
			continue
		}

		if binding == nil {
			s.writeResponse(writer, errorResponse(req.RequestID, ErrNoContext, "connection has not bound a session yet", "call session.bind first"))
			continue
		}

		resp := s.dispatcher.Dispatch(ctx, *binding, req)
		s.writeResponse(writer, resp)
	}

	if err := reader.Err(); err != nil && err != bufio.ErrTooLong {
		logging.Debug("ipc: connection read error: %v", err)
	} else if err == bufio.ErrTooLong {
		s.writeResponse(writer, errorResponse("", ErrFrameTooLarge, "request frame exceeds 4 MiB", ""))
	}
}

func (s *Server) writeResponse(w *bufio.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error("ipc: marshal response: %v", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		logging.Debug("ipc: write response: %v", err)
		return
	}
	if err := w.Flush(); err != nil {
		logging.Debug("ipc: flush response: %v", err)
	}
}

func bindFromParams(req Request) (SessionBinding, error) {
	params, ok := req.Params.(map[string]any)
	if !ok {
		return SessionBinding{}, fmt.Errorf("session.bind requires an object params payload")
	}
	profile, _ := params["profile"].(string)
	if profile == "" {
		profile = string(agentsession.CapabilityViewer)
	}
	identity, _ := params["identity"].(string)
	sessionID := req.SessionID
	if sessionID == "" {
		return SessionBinding{}, fmt.Errorf("session.bind requires session_id")
	}
	return SessionBinding{
		SessionID:         sessionID,
		CapabilityProfile: agentsession.CapabilityProfile(profile),
		Identity:          identity,
	}, nil
}
