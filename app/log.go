package app

import (
	"github.com/kaspanet/p2pwire/infrastructure/logger"
)

var log = logger.RegisterSubSystem("NODE")
