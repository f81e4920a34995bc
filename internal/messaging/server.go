package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/PentesterFlow/pagescope/internal/errors"
	"github.com/PentesterFlow/pagescope/internal/logger"
	"github.com/PentesterFlow/pagescope/internal/metrics"
)

// ErrAnalysisInProgress rejects a second analyzePage on a busy session.
var ErrAnalysisInProgress = errors.New("analysis already in progress")

// ServerConfig configures the WebSocket host.
type ServerConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	ReadLimit    int64         `yaml:"read_limit" json:"read_limit"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	PongTimeout  time.Duration `yaml:"pong_timeout" json:"pong_timeout"`
	// AllowedOrigins restricts browser clients; empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// DefaultServerConfig returns defaults for a local host.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:8765",
		ReadLimit:    64 * 1024,
		WriteTimeout: 10 * time.Second,
		PongTimeout:  60 * time.Second,
	}
}

// Server hosts the protocol over WebSocket at /ws. Each connection is a
// session with its own "analysis in progress" guard.
type Server struct {
	cfg        ServerConfig
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	log        *logger.Logger
	metrics    *metrics.Collector
	httpServer *http.Server

	mu       sync.Mutex
	sessions map[*session]struct{}
	closing  bool // set by Shutdown; no sessions are added after it
	wg       sync.WaitGroup
	nextID   atomic.Uint64
}

// NewServer creates a server around d.
func NewServer(cfg ServerConfig, d *Dispatcher, log *logger.Logger, m *metrics.Collector) *Server {
	def := DefaultServerConfig()
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		log:        log.WithComponent("server"),
		metrics:    m,
		sessions:   make(map[*session]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes: /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", s.serveHealth)
	return mux
}

// ListenAndServe serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Infof("Listening on ws://%s/ws", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return apperrors.NewTransportError("listen", err)
	}
	return nil
}

// Shutdown stops accepting connections, closes every session and waits for
// in-flight requests to finish or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	for sess := range s.sessions {
		sess.close(websocket.CloseGoingAway, "server shutting down")
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"sessions": s.SessionCount(),
	})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if s.isClosing() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.log.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:     fmt.Sprintf("s%d", s.nextID.Add(1)),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		server: s,
	}
	sess.log = s.log.WithSession(sess.id)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		// Shutdown began during the upgrade and may already be waiting.
		sess.close(websocket.CloseGoingAway, "server shutting down")
		conn.Close()
		return
	}
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	s.metrics.SessionOpened()
	sess.log.Debugf("Session opened from %s", r.RemoteAddr)

	go func() {
		defer s.wg.Done()
		sess.run()

		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		s.metrics.SessionClosed()
		sess.log.Debug("Session closed")
	}()
}

// session is one WebSocket connection.
type session struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	server *Server
	log    *logger.Logger

	writeMu   sync.Mutex
	analyzing atomic.Bool
	inflight  sync.WaitGroup
}

func (c *session) run() {
	defer func() {
		c.cancel()
		c.inflight.Wait()
		c.conn.Close()
	}()

	cfg := c.server.cfg
	c.conn.SetReadLimit(cfg.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	go c.keepalive()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(apperrors.NewTransportError("read", err)).Debug("Session read failed")
			}
			return
		}
		// Any inbound traffic proves the peer is alive.
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))

		if msgType != websocket.TextMessage {
			c.write(Response{Error: "binary messages are not supported"})
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.write(Response{Error: "invalid message: " + err.Error()})
			continue
		}

		c.dispatch(req)
	}
}

// dispatch answers ping inline and runs everything else in the background
// so a long analysis does not block the read loop.
func (c *session) dispatch(req Request) {
	if req.Action == ActionPing {
		c.respond(req, time.Now())
		return
	}

	if req.Action == ActionAnalyzePage && !c.analyzing.CompareAndSwap(false, true) {
		c.server.metrics.RecordMessage(req.Action)
		c.write(Response{ID: req.ID, Error: ErrAnalysisInProgress.Error()})
		c.log.MessageEvent(req.Action, c.id, 0, ErrAnalysisInProgress)
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if req.Action == ActionAnalyzePage {
			defer c.analyzing.Store(false)
		}
		c.respond(req, time.Now())
	}()
}

func (c *session) respond(req Request, start time.Time) {
	resp := c.server.dispatcher.Handle(c.ctx, req)

	var err error
	if resp.Error != "" {
		err = errors.New(resp.Error)
	}
	c.log.MessageEvent(req.Action, c.id, time.Since(start), err)

	c.write(resp)
}

func (c *session) write(resp Response) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(resp); err != nil {
		c.log.WithError(apperrors.NewTransportError("write", err)).Debug("Session write failed")
	}
}

// keepalive pings the peer until the session ends.
func (c *session) keepalive() {
	ticker := time.NewTicker(c.server.cfg.PongTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.server.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// close sends a close frame; the read loop then ends the session.
func (c *session) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	c.cancel()
	// Unblock ReadMessage if the peer never answers the close frame.
	c.conn.SetReadDeadline(time.Now().Add(time.Second))
}
