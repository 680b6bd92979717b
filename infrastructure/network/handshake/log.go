package handshake

import (
	"github.com/kaspanet/p2pwire/infrastructure/logger"
)

var log = logger.RegisterSubSystem("HSHK")
