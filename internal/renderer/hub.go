package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/bnema/radialmx/internal/action"
	"github.com/bnema/radialmx/internal/logger"
	"github.com/bnema/radialmx/internal/session"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 2 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// Controller is the part of the session machine renderers may drive.
type Controller interface {
	ReportHover(ctx context.Context, id uint64, angle, distance float64) (int, error)
	QueryActiveSession(ctx context.Context) (*session.Summary, error)
	Acknowledge(ctx context.Context, id uint64) (bool, error)
}

// Options configures a Hub.
type Options struct {
	// AllowedOrigins lists browser origins accepted on upgrade. Empty means
	// same-origin only, "*" accepts any.
	AllowedOrigins []string
	// QueueSize is the per-client outbound buffer.
	QueueSize int
	// RequestTimeout bounds each inbound request.
	RequestTimeout time.Duration
}

// Hub fans session signals out to connected renderers. Signals never block
// the caller: a client whose queue is full misses the message.
type Hub struct {
	mu      sync.Mutex
	clients map[*conn]struct{}
	ctrl    Controller
	opts    Options

	upgrader websocket.Upgrader
	log      *log.Logger
}

// NewHub creates a hub. Bind must be called before serving requests.
func NewHub(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = time.Second
	}
	h := &Hub{
		clients: make(map[*conn]struct{}),
		opts:    opts,
		log:     logger.With("component", "renderer"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Bind attaches the controller that serves inbound requests.
func (h *Hub) Bind(ctrl Controller) {
	h.mu.Lock()
	h.ctrl = ctrl
	h.mu.Unlock()
}

func (h *Hub) controller() Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctrl
}

// Clients returns the number of connected renderers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// ServeHTTP upgrades the request and serves the renderer until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &conn{
		hub:  h,
		ws:   ws,
		send: make(chan []byte, h.opts.QueueSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info("renderer connected", "remote", r.RemoteAddr)

	c.enqueue(Envelope{Type: TypeHello})

	go c.writeLoop()
	c.readLoop(r.Context())

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.done)
	h.log.Info("renderer disconnected", "remote", r.RemoteAddr)
}

// Serve listens on addr and serves the hub at /ws until ctx ends.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return h.ServeListener(ctx, ln)
}

// ServeListener serves the hub on an existing listener until ctx ends.
func (h *Hub) ServeListener(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	h.log.Info("renderer endpoint listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.closeAll()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.ws.Close()
	}
}

func (h *Hub) broadcast(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("failed to encode signal", "type", env.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.push(data)
	}
}

// SessionOpened implements session.Emitter.
func (h *Hub) SessionOpened(ev session.Opened) {
	h.broadcast(openedEnvelope(ev))
}

// SliceHighlighted implements session.Emitter.
func (h *Hub) SliceHighlighted(id uint64, index int) {
	h.broadcast(Envelope{Type: TypeSliceHighlighted, SessionID: id, Index: intPtr(index)})
}

// SessionOutcome implements session.Emitter.
func (h *Hub) SessionOutcome(id uint64, o session.Outcome) {
	h.broadcast(outcomeEnvelope(id, o))
}

// ActionResult implements session.Emitter.
func (h *Hub) ActionResult(id uint64, r action.Outcome) {
	h.broadcast(resultEnvelope(id, r))
}

type conn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

func (c *conn) push(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.log.Warn("renderer queue full, dropping signal")
	}
}

func (c *conn) enqueue(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.push(data)
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.ws.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.ws.Close()
				return
			}
		case <-c.done:
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			c.ws.Close()
			return
		}
	}
}

func (c *conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxMessage)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.log.Debug("renderer read failed", "err", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			c.enqueue(Envelope{Type: TypeError, Error: "only text messages are accepted"})
			continue
		}
		c.enqueue(c.hub.handle(ctx, data))
	}
}

// handle serves one inbound request and returns the reply.
func (h *Hub) handle(ctx context.Context, data []byte) Envelope {
	var req Envelope
	if err := json.Unmarshal(data, &req); err != nil {
		return Envelope{Type: TypeError, Error: "malformed request"}
	}
	fail := func(err error) Envelope {
		return Envelope{Type: TypeError, RequestID: req.RequestID, SessionID: req.SessionID, Error: err.Error()}
	}

	ctrl := h.controller()
	if ctrl == nil {
		return fail(session.ErrStopped)
	}
	ctx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	defer cancel()

	switch req.Type {
	case TypeHover:
		if req.Angle == nil || req.Distance == nil {
			return fail(session.ErrInvalidHover)
		}
		idx, err := ctrl.ReportHover(ctx, req.SessionID, *req.Angle, *req.Distance)
		if err != nil {
			return fail(err)
		}
		return Envelope{Type: TypeReply, RequestID: req.RequestID, SessionID: req.SessionID, Index: intPtr(idx)}

	case TypeQuery:
		sum, err := ctrl.QueryActiveSession(ctx)
		if err != nil {
			return fail(err)
		}
		return Envelope{Type: TypeReply, RequestID: req.RequestID, Session: sessionFromSummary(sum)}

	case TypeAck:
		changed, err := ctrl.Acknowledge(ctx, req.SessionID)
		if err != nil {
			return fail(err)
		}
		return Envelope{Type: TypeReply, RequestID: req.RequestID, SessionID: req.SessionID, Changed: boolPtr(changed)}

	default:
		return fail(fmt.Errorf("unknown request type %q", req.Type))
	}
}
