package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show beacon status",
	Long:  `Fetch the daemon status and print the live settings, counters and hardware outputs.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := newClient().GetStatus()
	if err != nil {
		return err
	}

	s := status.Settings
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Station:   %s (beacond %s, up %s)\n", status.Station, status.Version, status.Uptime)
	fmt.Fprintf(out, "State:     %s\n", status.State)
	fmt.Fprintf(out, "Message:   %q at %d wpm\n", s.Text, s.WPM)
	fmt.Fprintf(out, "Carrier:   %d Hz (base %d, offset %d, fsk shift %d)\n",
		s.Carrier(), s.FrequencyHz, s.OffsetHz, s.FSKOffsetHz)
	fmt.Fprintf(out, "Cycle:     keydown %ds, pause %ds, cw=%t fsk=%t\n",
		s.KeyDownSeconds, s.PauseSeconds, s.CW, s.FSK)
	fmt.Fprintf(out, "Counters:  %d cycles, %d packets, %d commands applied, %d watchdog feeds\n",
		status.Cycles, status.Packets, status.Applied, status.Feeds)
	if status.LastCycle != nil && status.LastCycle.Error != "" {
		fmt.Fprintf(out, "Last error: %s\n", status.LastCycle.Error)
	}
	for _, task := range status.Stalled {
		fmt.Fprintf(out, "STALLED:   %s\n", task)
	}
	return nil
}
