package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dougsko/cwbeacon/pkg/protocol"
)

var sendCmd = &cobra.Command{
	Use:   "send <field=value>",
	Short: "Apply a command on the daemon",
	Long: `Submit a command to the daemon as if it arrived over LoRa.

Fields: text, freq, wpm, pause, keydown, offset, fskoffset, cw, fsk.
The bare command "writeconfig" persists the live settings.`,
	Example: `  beaconctl send wpm=18
  beaconctl send "text=VVV DE ON0BCN"
  beaconctl send writeconfig`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	// catch typos before they reach the daemon
	if _, err := protocol.ParseCommand(args[0]); err != nil {
		return err
	}

	status, err := newClient().SendCommand(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status)
	return nil
}
