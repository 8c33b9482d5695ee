package commands

import (
	"fmt"
	"os"

	"github.com/globetrotter/realtime/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Globals struct {
	Debug    bool
	LogLevel string
	Version  string
}

// configureLogging sets up the global logger: console output in debug mode,
// JSON otherwise.
func configureLogging(globals *Globals) zerolog.Logger {
	level, err := zerolog.ParseLevel(globals.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if globals.Debug {
		level = zerolog.DebugLevel
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Caller().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(level)
	return log.Logger
}

// loadConfig reads the optional YAML file, then applies env overrides.
func loadConfig(path string) (*config.SocketConfig, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
