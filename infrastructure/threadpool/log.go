package threadpool

import (
	"github.com/kaspanet/p2pwire/infrastructure/logger"
	"github.com/kaspanet/p2pwire/util/panics"
)

var log = logger.RegisterSubSystem("THRD")
var spawn = panics.GoroutineWrapperFunc(log)
