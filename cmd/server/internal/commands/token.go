package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/globetrotter/realtime/src/auth"
)

type TokenCmd struct {
	Subject string        `arg:"" help:"token subject, e.g. the operator name"`
	TTL     time.Duration `help:"token lifetime" default:"1h"`
	Config  string        `help:"path to YAML config file" type:"path" env:"WS_CONFIG"`
}

func (t *TokenCmd) Run(_ context.Context, _ *Globals) error {
	cfg, err := loadConfig(t.Config)
	if err != nil {
		return err
	}
	if cfg.SecretKey == "" {
		return errors.New("no secret key configured (set SECRET_KEY or secret_key)")
	}
	v, err := auth.NewVerifier(cfg.SecretKey, cfg.TokenIssuer)
	if err != nil {
		return err
	}
	token, err := v.Issue(t.Subject, t.TTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
