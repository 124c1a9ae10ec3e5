// Package wsserver hosts sessions over websockets. Every connection to
// /v1/session owns a fresh session; messages use the same records as the
// stdio stream, one per websocket text message.
package wsserver

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/seeky/internal/agent"
	"github.com/codefionn/seeky/internal/frontend/proto"
	"github.com/codefionn/seeky/internal/logger"
)

const authTokenLength = 32

// SessionFactory creates an unstarted session for one connection.
type SessionFactory func() (*agent.Handle, error)

// Server represents the websocket host
type Server struct {
	addr       string
	authToken  string
	newSession SessionFactory
	router     *httprouter.Router
	httpServer *http.Server
	hub        *Hub
	upgrader   websocket.Upgrader
	log        *logger.Logger
}

// NewServer creates a server. An empty token is replaced by a random one.
func NewServer(addr, token string, newSession SessionFactory) (*Server, error) {
	if token == "" {
		var err error
		token, err = generateAuthToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate auth token: %w", err)
		}
	}
	s := &Server{
		addr:       addr,
		authToken:  token,
		newSession: newSession,
		router:     httprouter.New(),
		hub:        NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: logger.Global().WithPrefix("wsserver"),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/v1/session", s.handleSession)
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Token is the bearer token clients must present.
func (s *Server) Token() string { return s.authToken }

// ListenAndServe serves until ctx ends, then closes every connection.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StdLogger(s.log, slog.LevelWarn),
	}
	s.log.Info("listening on %s", ln.Addr())

	errc := make(chan error, 1)
	go func() { errc <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop shuts the HTTP server down and drops open connections; their
// sessions then shut down as if the peer had gone away.
func (s *Server) Stop() error {
	s.hub.CloseAll()
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// URL returns the session endpoint with the token attached.
func (s *Server) URL() string {
	return fmt.Sprintf("ws://%s/v1/session?token=%s", s.addr, s.authToken)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.authorized(r) {
		s.log.Warn("connection from %s rejected: invalid auth token", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed: %v", err)
		return
	}
	s.hub.Register(conn)
	defer func() {
		s.hub.Unregister(conn)
		_ = conn.Close()
	}()

	h, err := s.newSession()
	if err != nil {
		s.log.Error("session for %s: %v", r.RemoteAddr, err)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return
	}

	stop := keepAlive(conn)
	defer stop()

	s.log.Info("session %s attached to %s", h.Session.ID(), r.RemoteAddr)
	if err := proto.Serve(context.Background(), h, newTransport(conn)); err != nil {
		s.log.Info("session %s ended: %v", h.Session.ID(), err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(writeWait))
}

func (s *Server) authorized(r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

func generateAuthToken() (string, error) {
	bytes := make([]byte, authTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
