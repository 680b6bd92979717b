package main

import (
	"os"

	"github.com/kaspanet/p2pwire/app"
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
)

func main() {
	if err := app.StartApp(ionet.NewServerPacketHandlers()); err != nil {
		os.Exit(1)
	}
}
