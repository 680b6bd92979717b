package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kaspanet/p2pwire/util/crypto"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}

	err = run(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *configFlags, out io.Writer) error {
	var keyPair *crypto.KeyPair
	var err error
	if cfg.PrivateKey != "" {
		keyPair, err = crypto.KeyPairFromPrivateKeyHex(cfg.PrivateKey)
	} else {
		keyPair, err = crypto.GenerateKeyPair()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Private key: %s\n", keyPair.PrivateKeyHex())
	fmt.Fprintf(out, "Public key: %s\n", keyPair.PublicKey())
	return nil
}
