package main

import (
	"github.com/spf13/cobra"

	"github.com/dougsko/cwbeacon/pkg/client"
	"github.com/dougsko/cwbeacon/pkg/engine"
)

var (
	// HTTP API flags
	apiURL string

	// LoRa link flags
	portName string
	baudRate int
)

var rootCmd = &cobra.Command{
	Use:   "beaconctl",
	Short: "CW/FSK beacon control tool",
	Long: `beaconctl - A CLI tool for inspecting and reconfiguring a CW/FSK beacon.

Commands against a running daemon use its HTTP API:
  beaconctl --url http://beacon.local:8080 status

Remote control packets can also be built offline and, with --port, sent
through a local UART LoRa module:
  beaconctl packet --station ON0BCN wpm=18 --port /dev/ttyUSB0`,
	Version:      engine.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&apiURL, "url", "u", "http://localhost:8080", "beacond HTTP API base URL")

	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port of a local LoRa module")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func newClient() *client.APIClient {
	return client.NewAPIClient(apiURL)
}
