package providers

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/fasthttp/websocket"
	"github.com/globetrotter/realtime/config"
	"github.com/globetrotter/realtime/src/auth"
	"github.com/globetrotter/realtime/src/bridge"
	"github.com/globetrotter/realtime/src/hub"
	"github.com/globetrotter/realtime/src/service"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Server wires the hub, protocol handler, service, admin API and optional
// Redis bridge behind a single fasthttp server.
type Server struct {
	cfg      *config.SocketConfig
	version  string
	logger   zerolog.Logger
	hub      *hub.Hub
	protocol *hub.Protocol
	service  *service.Service
	verifier *auth.Verifier
	app      *fiber.App
	upgrader websocket.FastHTTPUpgrader
	http     *fasthttp.Server

	bridgeMu sync.RWMutex
	bridge   bridge.Bridge

	// slots counts reserved WebSocket connections, including handshakes in flight.
	slots atomic.Int64

	// ctx is the parent of every session; cancelling it closes them all.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server from cfg. The admin API is only mounted when
// cfg.SecretKey is set.
func NewServer(cfg *config.SocketConfig, version string, logger zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := hub.New(logger)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		version: version,
		logger:  logger.With().Str("component", "server").Logger(),
		hub:     h,
		protocol: hub.NewProtocol(h, hub.Options{
			PingInterval: cfg.PingEvery(),
			WriteTimeout: cfg.WriteWait(),
		}, logger),
		service: service.New(h, logger),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.SecretKey != "" {
		v, err := auth.NewVerifier(cfg.SecretKey, cfg.TokenIssuer)
		if err != nil {
			cancel()
			return nil, err
		}
		s.verifier = v
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "GlobeTrotter realtime",
		ErrorHandler: errorHandler,
	})
	s.RegisterRoutes(s.app)

	s.http = &fasthttp.Server{
		Name:               "globetrotter-realtime",
		Handler:            s.Handler(),
		ReadBufferSize:     8 * 1024, // 8KiB, bounds request headers
		MaxRequestBodySize: 1 << 20,
		Logger:             fasthttpLogger{s.logger},
	}
	return s, nil
}

// Service exposes the collaboration API.
func (s *Server) Service() *service.Service { return s.service }

// Hub exposes the registries.
func (s *Server) Hub() *hub.Hub { return s.hub }

// AttachBridge starts the Redis event bridge. Failure is not fatal: the
// server keeps running standalone.
func (s *Server) AttachBridge(cfg *bridge.RedisConfig) {
	rb := bridge.NewRedisBridge(cfg, s.service, s.logger)
	if err := rb.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		_ = rb.Stop()
		return
	}
	s.setBridge(rb)
	s.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return s.http.Serve(ln)
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ln)
}

// Shutdown closes every session, stops the bridge and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.bridgeMu.Lock()
	b := s.bridge
	s.bridge = nil
	s.bridgeMu.Unlock()
	if b != nil {
		if err := b.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("bridge stop error")
		}
	}
	return s.http.ShutdownWithContext(ctx)
}

func (s *Server) setBridge(b bridge.Bridge) {
	s.bridgeMu.Lock()
	s.bridge = b
	s.bridgeMu.Unlock()
}

func (s *Server) bridgeAvailable() bool {
	s.bridgeMu.RLock()
	defer s.bridgeMu.RUnlock()
	return s.bridge != nil && s.bridge.Available()
}

type fasthttpLogger struct {
	logger zerolog.Logger
}

func (l fasthttpLogger) Printf(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}
