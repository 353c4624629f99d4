package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	journalLimit  int
	journalStatus string
	journalCycles bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show journaled commands or beacon cycles",
	Long:  `List the most recent entries of the daemon's command journal, newest first. With --cycles the beacon cycle log is listed instead.`,
	RunE:  runJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "Number of entries to show")
	journalCmd.Flags().StringVar(&journalStatus, "status", "", "Only show commands with this status (applied, persisted, rejected)")
	journalCmd.Flags().BoolVar(&journalCycles, "cycles", false, "List beacon cycles instead of commands")
}

func runJournal(cmd *cobra.Command, args []string) error {
	api := newClient()
	out := cmd.OutOrStdout()

	if journalCycles {
		cycles, err := api.GetCycles(journalLimit)
		if err != nil {
			return err
		}
		for _, c := range cycles {
			line := fmt.Sprintf("%s #%d %6s %q %dwpm %dHz cw=%t fsk=%t",
				c.Started.Local().Format(time.DateTime), c.Number, c.Duration.Round(time.Second),
				c.Text, c.WPM, c.CarrierHz, c.CW, c.FSK)
			if c.Error != "" {
				line += " error: " + c.Error
			}
			fmt.Fprintln(out, line)
		}
		return nil
	}

	records, err := api.GetCommands(journalLimit, journalStatus)
	if err != nil {
		return err
	}
	for _, r := range records {
		line := fmt.Sprintf("%s %-5s %-9s %s", r.Time.Local().Format(time.DateTime), r.Source, r.Status, r.Line)
		if r.RSSI != nil && r.SNR != nil {
			line += fmt.Sprintf(" (rssi %d, snr %.1f)", *r.RSSI, *r.SNR)
		}
		if r.Error != "" {
			line += " error: " + r.Error
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
