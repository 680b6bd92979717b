package connector

import (
	"github.com/kaspanet/p2pwire/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CNCT")
