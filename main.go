// Command runstats prints the mean of numeric Meta fields over a JSON array of
// simulation run records, as written by the packet-delivery simulator history
// export.
//
//	runstats [-fields TotalCycles,EnergyConsumed] [-group-by Implementation] runs.json
package main

import (
	"os"

	"runstats/internal/cli"
)

func main() {
	os.Exit(cli.Run(cli.Unified, os.Args[1:], os.Stdout, os.Stderr))
}
