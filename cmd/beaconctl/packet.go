package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dougsko/cwbeacon/pkg/lora"
	"github.com/dougsko/cwbeacon/pkg/protocol"
)

var (
	station     string
	destination int
	address     int
	networkID   int
)

var packetCmd = &cobra.Command{
	Use:   "packet <field=value>...",
	Short: "Build a LoRa remote control packet",
	Long: `Encode one or more commands into a remote control packet addressed to
a station. The packet is printed as hex; with --port it is also sent
through a local LoRa module.`,
	Example: `  beaconctl packet --station ON0BCN wpm=18 pause=30
  beaconctl packet --station ON0BCN writeconfig --port /dev/ttyUSB0`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPacket,
}

func init() {
	rootCmd.AddCommand(packetCmd)
	packetCmd.Flags().StringVarP(&station, "station", "s", "", "Destination station name")
	packetCmd.Flags().IntVar(&destination, "to", 0, "LoRa address to send to (0 broadcasts)")
	packetCmd.Flags().IntVar(&address, "address", 1, "Address of the local LoRa module")
	packetCmd.Flags().IntVar(&networkID, "network", 0, "LoRa network ID")
	packetCmd.MarkFlagRequired("station")
}

func runPacket(cmd *cobra.Command, args []string) error {
	cmds := make([]protocol.Command, 0, len(args))
	for _, arg := range args {
		c, err := protocol.ParseCommand(arg)
		if err != nil {
			return err
		}
		cmds = append(cmds, c)
	}

	packet := protocol.Encode(station, cmds...)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", hex.EncodeToString(packet))

	if portName == "" {
		return nil
	}

	radio, err := lora.OpenSerialRadio(lora.SerialConfig{
		Device:    portName,
		BaudRate:  baudRate,
		Address:   address,
		NetworkID: networkID,
	})
	if err != nil {
		return err
	}
	defer radio.Close()

	if err := radio.Send(destination, packet); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	fmt.Fprintf(out, "Sent %d bytes to address %d via %s\n", len(packet), destination, portName)
	return nil
}
