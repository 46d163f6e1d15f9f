package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/radialmx/internal/battery"
	"github.com/bnema/radialmx/internal/display"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/session"
)

// Handler serves the control socket methods.
type Handler interface {
	QueryStatus(ctx context.Context) (session.Status, error)
	QueryActiveSession(ctx context.Context) (*session.Summary, error)
	ReportHover(ctx context.Context, id uint64, angle, distance float64) (int, error)
	Acknowledge(ctx context.Context, id uint64) (bool, error)
	ReloadProfiles() error
	Monitors() []display.Monitor
	// Battery returns nil when battery polling is off.
	Battery() *battery.Status
}

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    Handler
	timeout    time.Duration
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a server bound to socketPath once started.
func NewSocketServer(socketPath string, handler Handler) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handler:    handler,
		timeout:    2 * time.Second,
	}
}

// Path returns the socket path.
func (s *SocketServer) Path() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// user only
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop closes the listener and every open connection, then removes the socket.
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()
	os.RemoveAll(s.socketPath)

	logger.Info("IPC socket server stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Errorf("Failed to accept connection: %v", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	logger.Debug("New IPC connection established")

	for {
		msg, err := readFrame(conn)
		if err != nil {
			logger.Debugf("Connection closed or read error: %v", err)
			return
		}

		var resp Response
		req, err := requestFromStruct(msg)
		if err != nil {
			resp = errorResponse(req.ID, err)
		} else {
			resp = s.handleRequest(ctx, req)
		}

		out, err := resp.toStruct()
		if err != nil {
			out, _ = errorResponse(req.ID, err).toStruct()
		}
		if err := writeFrame(conn, out); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

// handleRequest dispatches a single request to the handler.
func (s *SocketServer) handleRequest(ctx context.Context, req Request) Response {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger.Debug("IPC request", "id", req.ID, "method", req.Method)

	switch req.Method {
	case MethodStatus:
		st, err := s.handler.QueryStatus(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true, Result: statusToMap(st, s.handler.Battery())}

	case MethodActive:
		sum, err := s.handler.QueryActiveSession(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		result := map[string]any{}
		if sum != nil {
			result["active"] = summaryToMap(sum)
		}
		return Response{ID: req.ID, OK: true, Result: result}

	case MethodHover:
		id, ok := sessionParam(req.Params)
		if !ok {
			return errorResponse(req.ID, fmt.Errorf("%w: session_id required", ErrBadRequest))
		}
		idx, err := s.handler.ReportHover(ctx, id,
			floatField(req.Params, "angle"), floatField(req.Params, "distance"))
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true, Result: map[string]any{"index": idx}}

	case MethodAck:
		id, ok := sessionParam(req.Params)
		if !ok {
			return errorResponse(req.ID, fmt.Errorf("%w: session_id required", ErrBadRequest))
		}
		changed, err := s.handler.Acknowledge(ctx, id)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true, Result: map[string]any{"changed": changed}}

	case MethodReload:
		if err := s.handler.ReloadProfiles(); err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true}

	case MethodMonitors:
		return Response{ID: req.ID, OK: true, Result: monitorsToMap(s.handler.Monitors())}

	default:
		return errorResponse(req.ID, fmt.Errorf("%w: unknown method %q", ErrBadRequest, req.Method))
	}
}

func sessionParam(params map[string]any) (uint64, bool) {
	f, ok := params["session_id"].(float64)
	if !ok || f < 1 || f != float64(uint64(f)) {
		return 0, false
	}
	return uint64(f), true
}
