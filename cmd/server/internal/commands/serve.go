package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/globetrotter/realtime/providers"
	"github.com/globetrotter/realtime/src/bridge"
	"github.com/globetrotter/realtime/src/telemetry"
)

type ServeCmd struct {
	Config    string `help:"path to YAML config file" type:"path" env:"WS_CONFIG"`
	Listen    string `help:"listen address, overrides config"`
	Telemetry bool   `help:"export metrics over OTLP gRPC" env:"WS_TELEMETRY"`
	NoRedis   bool   `help:"do not start the Redis event bridge"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	logger := configureLogging(globals)

	cfg, err := loadConfig(s.Config)
	if err != nil {
		return err
	}
	if s.Listen != "" {
		cfg.Listen = s.Listen
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.Telemetry || cfg.Telemetry {
		shutdown, err := telemetry.InitTelemetry(ctx, "globetrotter-realtime", globals.Version)
		if err != nil {
			logger.Warn().Err(err).Msg("telemetry disabled")
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(sctx); err != nil {
					logger.Error().Err(err).Msg("telemetry shutdown")
				}
			}()
		}
	}

	srv, err := providers.NewServer(cfg, globals.Version, logger)
	if err != nil {
		return err
	}
	if cfg.Redis && !s.NoRedis {
		srv.AttachBridge(bridge.RedisConfigFromEnv())
	}

	logger.Info().Str("version", globals.Version).Str("listen", cfg.Listen).Msg("Starting realtime server")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
