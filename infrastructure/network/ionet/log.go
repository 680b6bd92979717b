package ionet

import (
	"github.com/kaspanet/p2pwire/infrastructure/logger"
)

var log = logger.RegisterSubSystem("IONT")
