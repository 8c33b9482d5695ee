package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/globetrotter/realtime/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug    bool             `help:"Enable debug mode."`
		LogLevel string           `help:"Log level." default:"info" enum:"debug,info,warn,error"`
		Version  kong.VersionFlag `help:"Print version and exit."`

		Serve   commands.ServeCmd   `cmd:"" default:"1" help:"Start the real-time collaboration server"`
		Token   commands.TokenCmd   `cmd:"" help:"Issue an admin API bearer token"`
		Publish commands.PublishCmd `cmd:"" help:"Publish an event through the Redis bridge"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("globetrotter-realtime"),
		kong.Description("GlobeTrotter real-time trip collaboration server."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, LogLevel: cli.LogLevel, Version: version})
	cmd.FatalIfErrorf(err)
}
