package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/hardware"
	"github.com/dougsko/cwbeacon/pkg/morse"
	"github.com/dougsko/cwbeacon/pkg/sidetone"
)

func main() {
	var (
		message    = flag.String("message", "", "Beacon message to key")
		wpm        = flag.Int("wpm", 20, "Keying speed in words per minute")
		freq       = flag.Int64("freq", 10140000, "Base frequency in Hz")
		offset     = flag.Int64("offset", 0, "Offset added to the base frequency in Hz")
		fskOffset  = flag.Int64("fsk-offset", 50, "FSK mark to space shift in Hz")
		mode       = flag.String("mode", "cw", "Keying mode (cw or fsk)")
		sampleRate = flag.Int("rate", sidetone.DefaultSampleRate, "Audio sample rate")
		toneHz     = flag.Float64("tone", sidetone.DefaultToneHz, "Sidetone pitch of the reference frequency in Hz")
		output     = flag.String("output", "", "Output audio file (raw 16-bit samples)")
		showSteps  = flag.Bool("steps", false, "Show keying step sequence")
	)
	flag.Parse()

	if *message == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -message \"VVV DE N0CALL\" [options]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *mode != "cw" && *mode != "fsk" {
		fmt.Fprintf(os.Stderr, "Mode must be cw or fsk, got %q\n", *mode)
		os.Exit(1)
	}

	settings := beacon.Settings{
		Text:        *message,
		WPM:         *wpm,
		FrequencyHz: *freq,
		OffsetHz:    *offset,
		FSKOffsetHz: *fskOffset,
		CW:          *mode == "cw",
		FSK:         *mode == "fsk",
	}

	// FSK sounds the space tone at the configured pitch
	reference := settings.Carrier()
	if settings.FSK {
		reference = settings.Space()
	}

	renderer := sidetone.NewRenderer(reference)
	renderer.SampleRate = *sampleRate
	renderer.ToneHz = *toneHz

	tx := hardware.NewManager(hardware.HardwareConfig{},
		hardware.NewMockSynthesizer(hardware.DefaultCrystalHz), hardware.NewMockGPIO())
	keyer := beacon.NewKeyer(beacon.NewConfig(settings), tx, beacon.Options{
		// render as fast as possible; the renderer uses step durations
		Sleeper:  beacon.SleeperFunc(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
		Observer: renderer,
	})

	fmt.Printf("Keying Beacon Message\n")
	fmt.Printf("=====================\n")
	fmt.Printf("Message:  %q\n", *message)
	patterns := morse.EncodeString(strings.ToUpper(*message))
	words := make([]string, 0, len(patterns))
	for _, p := range patterns {
		words = append(words, string(p))
	}
	fmt.Printf("Morse:    %s\n", strings.Join(words, " "))
	fmt.Printf("Estimate: %v\n", morse.NewTiming(*wpm).MessageDuration(*message))
	fmt.Printf("Mode:     %s at %d wpm (dit %v)\n", strings.ToUpper(*mode), *wpm, morse.DitDuration(*wpm))
	fmt.Printf("Carrier:  %d Hz\n", settings.Carrier())
	if settings.FSK {
		fmt.Printf("Space:    %d Hz\n", settings.Space())
	}
	fmt.Printf("Rate:     %d Hz\n", *sampleRate)
	fmt.Printf("\n")

	var err error
	if settings.FSK {
		err = keyer.SendFSK(context.Background(), *message)
	} else {
		err = keyer.SendCW(context.Background(), *message)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Keying failed: %v\n", err)
		os.Exit(1)
	}

	track := renderer.Track()
	fmt.Printf("✓ Keyed %d steps\n", len(track.Segments))
	fmt.Printf("✓ Generated %d audio samples (%.2f seconds)\n", len(track.Samples), track.Duration().Seconds())

	if *showSteps {
		fmt.Printf("\nStep Sequence:\n")
		fmt.Printf("==============\n")
		for i, seg := range track.Segments {
			state := "off"
			if seg.Step.Output {
				state = "ON "
			}
			fmt.Printf("%3d: %-4s %s %q %d Hz %v\n", i, seg.Step.Mode, state, seg.Step.Char,
				seg.Step.FrequencyHz, seg.Step.Duration)
		}
		fmt.Printf("\n")
	}

	rms, peak := sidetone.Levels(track.Samples)
	fmt.Printf("Audio Stats:\n")
	fmt.Printf("  RMS:      %.1f dBFS\n", rms)
	fmt.Printf("  Peak:     %.1f dBFS\n", peak)

	tones := track.Tones()
	fmt.Printf("  Tones:    ")
	for i, hz := range tones {
		if i > 0 {
			fmt.Printf(", ")
		}
		fmt.Printf("%.1f Hz", hz)
	}
	fmt.Printf("\n")

	// Output to file if requested
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output file: %v\n", err)
			os.Exit(1)
		}
		defer file.Close()

		if err := track.WritePCM(file); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write audio: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("✓ Wrote audio to %s\n", *output)
		fmt.Printf("  Play with: sox -r %d -e signed -b 16 -c 1 -t raw %s -d\n", *sampleRate, *output)
	}
}
