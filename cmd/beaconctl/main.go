// beaconctl controls a running beacond over its HTTP API, or builds remote
// control packets for the LoRa link.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
