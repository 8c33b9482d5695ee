package providers

import (
	"github.com/globetrotter/realtime/src/bridge"
	"github.com/globetrotter/realtime/src/service"
	"github.com/globetrotter/realtime/src/types"
)

// Compile-time interface assertions.
var (
	_ types.Conn    = (*fasthttpConn)(nil)
	_ bridge.Target = (*service.Service)(nil)
	_ bridge.Bridge = (*bridge.RedisBridge)(nil)
)
