// Package server exposes the WebSocket endpoint that accepts sessions,
// echoes inbound traffic, and streams telemetry on the urgent path.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/alertwire/alertwire/internal/config"
	"github.com/alertwire/alertwire/internal/protocol"
	"github.com/alertwire/alertwire/internal/session"
	"github.com/alertwire/alertwire/internal/transport"
)

const (
	// streamCount and streamInterval shape the simulated telemetry burst
	// emitted on the urgent path.
	streamCount    = 5
	streamInterval = 400 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server accepts WebSocket sessions over HTTP. Accepted sessions begin
// directly in the open state; connect and handshake are the client's
// concern.
type Server struct {
	cfg    config.AddrConfig
	logger *zap.Logger
	http   *http.Server

	// ctx bounds every session and telemetry streamer the server owns.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sessions *session.Registry
}

// New creates a server listening on the configured address.
func New(cfg config.AddrConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: session.NewRegistry(),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET(cfg.Endpoint, s.handleWS)

	s.http = &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
	}
	return s
}

// Handler returns the HTTP handler serving the health and WebSocket
// routes, for mounting on an externally managed listener.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until Shutdown is called. It uses TLS when the config
// carries certificate material.
func (s *Server) Run() error {
	s.logger.Info("listening",
		zap.String("addr", s.cfg.Addr()),
		zap.String("endpoint", s.cfg.Endpoint),
		zap.Bool("tls", s.cfg.UseTLS),
	)

	var err error
	if s.cfg.UseTLS {
		err = s.http.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		err = s.http.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, stops every live session, and
// waits for the tracked telemetry streamers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.sessions.StopAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out waiting for streamers")
	}

	return s.http.Shutdown(ctx)
}

// handleWS upgrades the request and runs an accepted session over it.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	t := transport.FromConn(conn)
	sess := session.Accepted(t, session.Config{
		Dispatcher: protocol.NewDispatcher(&echoHandler{server: s, transport: t}, s.logger),
		Classify:   Classify,
		Logger:     s.logger,
	})

	s.sessions.Add(sess)

	s.logger.Info("session accepted", zap.String("session_id", sess.ID()))
	sess.Start(nil)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-sess.Done():
		case <-s.ctx.Done():
			sess.Stop()
			<-sess.Done()
		}
		s.sessions.Remove(sess.ID())
	}()
}

// Classify tags an inbound payload with the urgency named by an optional
// "urgency:" prefix, e.g. "critical:evacuate". Payloads without a known
// prefix are normal.
func Classify(payload []byte) protocol.Message {
	text := string(payload)
	if name, rest, ok := strings.Cut(text, ":"); ok {
		switch u := protocol.ParseUrgency(name); u {
		case protocol.UrgencyElevated, protocol.UrgencyCritical:
			return protocol.NewTextMessage(rest, u)
		}
	}
	return protocol.NewMessage(payload, protocol.UrgencyNormal)
}

// echoHandler echoes normal messages back to the peer and fans urgent
// messages out to a tracked telemetry streamer.
type echoHandler struct {
	server    *Server
	transport transport.Transport
}

// OnNormal echoes the payload back to the peer.
func (h *echoHandler) OnNormal(msg protocol.Message) {
	h.server.logger.Info("normal message", zap.String("payload", msg.Text()))
	if err := h.transport.Write(msg.Payload()); err != nil {
		h.server.logger.Warn("echo write", zap.Error(err))
	}
}

// OnUrgent launches the telemetry stream for the target named by the
// payload. The streamer is tracked by the server and cancelled on
// shutdown rather than left detached.
func (h *echoHandler) OnUrgent(msg protocol.Message) {
	h.server.logger.Warn("urgent message, streaming telemetry",
		zap.String("urgency", msg.Urgency().String()),
		zap.String("target", msg.Text()),
	)

	h.server.wg.Add(1)
	go h.server.streamTelemetry(msg.Text())
}

// streamTelemetry emits a short burst of simulated position fixes for the
// target. It stops early when the server shuts down.
func (s *Server) streamTelemetry(target string) {
	defer s.wg.Done()

	for i := 0; i < streamCount; i++ {
		s.logger.Info("telemetry fix",
			zap.String("target", target),
			zap.String("position", fmt.Sprintf("lat=%.4f lon=%.4f", 34.2345+float64(i)*0.0001, 69.1234+float64(i)*0.0002)),
		)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(streamInterval):
		}
	}
}
