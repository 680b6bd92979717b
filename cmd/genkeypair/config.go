package main

import (
	"github.com/jessevdk/go-flags"
)

type configFlags struct {
	PrivateKey string `long:"privatekey" description:"Print the public key of this hex encoded private key instead of generating a new key pair"`
}

func parseConfig(args []string) (*configFlags, error) {
	cfg := &configFlags{}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	_, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
