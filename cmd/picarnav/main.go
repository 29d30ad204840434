// Package main is the picarnav command itself.
package main

import (
	"log"
	"os"

	"github.com/hpalin2/picarnav/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
