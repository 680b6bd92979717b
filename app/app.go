package app

import (
	"fmt"
	"os"

	"github.com/kaspanet/p2pwire/infrastructure/config"
	"github.com/kaspanet/p2pwire/infrastructure/logger"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
	"github.com/kaspanet/p2pwire/infrastructure/os/signal"
	"github.com/kaspanet/p2pwire/util/panics"
	"github.com/kaspanet/p2pwire/util/profiling"
	"github.com/kaspanet/p2pwire/version"
)

// StartApp runs a node configured from the command line until it is
// interrupted. handlers serve the packets received from incoming peers.
func StartApp(handlers *ionet.ServerPacketHandlers) error {
	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	interrupt := signal.InterruptListener()

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	err = logger.InitLog(cfg.LogFile, cfg.ErrLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing the logger: %s\n", err)
		return err
	}
	defer logger.BackendLog.Close()
	defer panics.HandlePanic(log, "MAIN", nil)

	log.Infof("Version %s", version.Version())
	log.Infof("Node identity %s", cfg.KeyPair.PublicKey())

	if cfg.Profile != "" {
		profileServer := profiling.Start(cfg.Profile, log)
		defer profileServer.Close()
	}

	manager := NewComponentManager(cfg, handlers)
	defer func() {
		log.Infof("Gracefully shutting down the node...")
		err := manager.Stop()
		if err != nil {
			log.Errorf("Error stopping the node: %+v", err)
		}
		log.Infof("Node shutdown complete")
	}()

	err = manager.Start()
	if err != nil {
		log.Errorf("Error starting the node: %+v", err)
		return err
	}
	for _, address := range manager.ListenAddresses() {
		log.Infof("Listening on %s", address)
	}

	<-interrupt
	return nil
}
