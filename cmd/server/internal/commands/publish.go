package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/globetrotter/realtime/src/bridge"
	"github.com/globetrotter/realtime/src/types"
)

type PublishCmd struct {
	Target string `help:"delivery target" enum:"room,user,all" default:"room"`
	Trip   string `help:"trip id for room delivery"`
	User   string `help:"user id for personal delivery"`
	Event  string `arg:"" help:"event JSON object, must include a type field"`
}

func (p *PublishCmd) Run(ctx context.Context, globals *Globals) error {
	logger := configureLogging(globals)

	var event types.Event
	if err := json.Unmarshal([]byte(p.Event), &event); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}

	rb := bridge.NewRedisBridge(bridge.RedisConfigFromEnv(), nil, logger)
	defer rb.Stop()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	env := bridge.Envelope{
		Target: p.Target,
		TripID: p.Trip,
		UserID: p.User,
		Event:  event,
	}
	if err := rb.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	logger.Info().Str("target", p.Target).Str("type", event.Type()).Msg("event published")
	return nil
}
