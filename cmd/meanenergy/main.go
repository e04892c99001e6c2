package main

import (
	"os"

	"runstats/internal/cli"
)

func main() {
	os.Exit(cli.Run(cli.MeanEnergy, os.Args[1:], os.Stdout, os.Stderr))
}
