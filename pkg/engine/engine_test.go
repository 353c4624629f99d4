package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/config"
	"github.com/dougsko/cwbeacon/pkg/hardware"
	"github.com/dougsko/cwbeacon/pkg/lora"
	"github.com/dougsko/cwbeacon/pkg/protocol"
	"github.com/dougsko/cwbeacon/pkg/storage"
)

// fastSleeper runs the beacon a thousand times faster than real time
var fastSleeper = beacon.SleeperFunc(func(ctx context.Context, d time.Duration) error {
	return beacon.TimerSleeper{}.Sleep(ctx, d/1000)
})

type testRig struct {
	engine     *Engine
	radio      *lora.MockRadio
	dog        *hardware.MockWatchdog
	gpio       *hardware.MockGPIO
	configPath string
}

func newTestConfig(tempDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Station.Name = "ON0BCN"
	cfg.Beacon.Text = "VVV"
	cfg.Beacon.FrequencyHz = 10140000
	cfg.Beacon.OffsetHz = 100
	cfg.Beacon.FSKOffsetHz = 50
	cfg.Beacon.KeyDownSeconds = 3
	cfg.Beacon.PauseSeconds = 10
	cfg.Beacon.FSK = true
	cfg.LoRa.StartDelaySeconds = 0
	cfg.Storage.DatabasePath = filepath.Join(tempDir, "journal.db")
	return cfg
}

func newTestRig(t *testing.T, mutate func(*config.Config)) *testRig {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "cwbeacon-engine-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	cfg := newTestConfig(tempDir)
	if mutate != nil {
		mutate(cfg)
	}

	rig := &testRig{
		radio:      lora.NewMockRadio(),
		dog:        hardware.NewMockWatchdog(),
		gpio:       hardware.NewMockGPIO(),
		configPath: filepath.Join(tempDir, "config.yaml"),
	}
	rig.radio.TimeoutAfter = 10 * time.Millisecond

	rig.engine, err = New(cfg, rig.configPath, Components{
		Synthesizer: hardware.NewMockSynthesizer(hardware.DefaultCrystalHz),
		GPIO:        rig.gpio,
		Watchdog:    rig.dog,
		Radio:       rig.radio,
		Sleeper:     fastSleeper,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	t.Cleanup(func() { rig.engine.Stop() })
	return rig
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestNewEngine(t *testing.T) {
	t.Run("Create Engine", func(t *testing.T) {
		rig := newTestRig(t, nil)
		e := rig.engine

		if e.journal == nil {
			t.Error("Expected journal to be opened")
		}
		if e.radio == nil {
			t.Error("Expected radio to be set")
		}
		if e.IsRunning() {
			t.Error("Expected engine not to be running before Start")
		}

		settings := e.Settings()
		if settings.StationName != "ON0BCN" {
			t.Errorf("Expected station ON0BCN, got %s", settings.StationName)
		}
		if settings.Carrier() != 10140100 {
			t.Errorf("Expected carrier 10140100, got %d", settings.Carrier())
		}
	})

	t.Run("Initial Status", func(t *testing.T) {
		rig := newTestRig(t, nil)
		status := rig.engine.Status()

		if status.State != "idle" {
			t.Errorf("Expected state idle, got %s", status.State)
		}
		if status.Version != Version {
			t.Errorf("Expected version %s, got %s", Version, status.Version)
		}
		if status.LastCycle != nil {
			t.Error("Expected no last cycle before Start")
		}
		if status.Hardware.Initialized {
			t.Error("Expected hardware not initialized before Start")
		}
	})

	t.Run("Journal Disabled", func(t *testing.T) {
		rig := newTestRig(t, func(cfg *config.Config) {
			cfg.Storage.DatabasePath = ""
		})
		if rig.engine.Journal() != nil {
			t.Error("Expected no journal without a database path")
		}
	})

	t.Run("LoRa Disabled", func(t *testing.T) {
		rig := newTestRig(t, func(cfg *config.Config) {
			cfg.LoRa.Enabled = false
		})
		if rig.engine.radio != nil {
			t.Error("Expected no radio when LoRa is disabled")
		}

		if _, err := rig.engine.Submit("wpm=18"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if wpm := rig.engine.Settings().WPM; wpm != 18 {
			t.Errorf("Expected wpm 18, got %d", wpm)
		}
	})

	t.Run("Bad Watchdog Device", func(t *testing.T) {
		tempDir := t.TempDir()
		cfg := newTestConfig(tempDir)
		cfg.Watchdog.Device = filepath.Join(tempDir, "missing", "watchdog")

		if _, err := New(cfg, filepath.Join(tempDir, "config.yaml"), Components{}); err == nil {
			t.Error("Expected error opening a missing watchdog device")
		}
	})
}

func TestEngineRun(t *testing.T) {
	t.Run("Cycles Are Journaled", func(t *testing.T) {
		rig := newTestRig(t, nil)
		if err := rig.engine.Start(); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		eventually(t, "two completed beacon cycles", func() bool {
			return rig.engine.Status().Cycles >= 2
		})
		if err := rig.engine.Stop(); err != nil {
			t.Fatalf("Expected no error on stop, got: %v", err)
		}

		status := rig.engine.Status()
		if status.LastCycle == nil {
			t.Fatal("Expected a last cycle")
		}
		if status.LastCycle.Error != "" {
			t.Errorf("Expected last cycle without error, got %q", status.LastCycle.Error)
		}
		if !status.LastCycle.CW || !status.LastCycle.FSK {
			t.Errorf("Expected CW and FSK cycle, got %+v", status.LastCycle)
		}

		// the journal is closed now; reopen it to read what was written
		journal, err := storage.NewJournal(rig.engine.config.Storage.DatabasePath, 0)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		defer journal.Close()

		cycles, err := journal.GetCycles(0, 0)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(cycles) < 2 {
			t.Errorf("Expected at least 2 journaled cycles, got %d", len(cycles))
		}
	})

	t.Run("Watchdog Fed While Running", func(t *testing.T) {
		rig := newTestRig(t, nil)
		if err := rig.engine.Start(); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		eventually(t, "a watchdog feed", func() bool {
			return rig.dog.Feeds() > 0
		})
		rig.engine.Stop()

		if err := rig.dog.Feed(); err == nil {
			t.Error("Expected watchdog to be closed after Stop")
		}
	})

	t.Run("Remote Packet Applied", func(t *testing.T) {
		rig := newTestRig(t, nil)
		if err := rig.engine.Start(); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		rig.radio.Inject(protocol.Encode("ON0BCN", protocol.SetSpeed{WPM: 25}))

		eventually(t, "speed change", func() bool {
			return rig.engine.Settings().WPM == 25
		})
		eventually(t, "journaled command", func() bool {
			records, err := rig.engine.Journal().GetCommands(storage.CommandQuery{})
			return err == nil && len(records) == 1
		})

		records, _ := rig.engine.Journal().GetCommands(storage.CommandQuery{})
		if records[0].RSSI == nil || *records[0].RSSI != -60 {
			t.Errorf("Expected RSSI -60, got %v", records[0].RSSI)
		}

		status := rig.engine.Status()
		if status.Packets != 1 || status.Applied != 1 {
			t.Errorf("Expected 1 packet and 1 applied, got %d and %d", status.Packets, status.Applied)
		}
		if status.Hardware.LoRaPackets != 1 {
			t.Errorf("Expected 1 LED pulse, got %d", status.Hardware.LoRaPackets)
		}
	})

	t.Run("Start Twice", func(t *testing.T) {
		rig := newTestRig(t, nil)
		if err := rig.engine.Start(); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if err := rig.engine.Start(); err == nil {
			t.Error("Expected error starting a running engine")
		}
	})

	t.Run("Stop Is Idempotent", func(t *testing.T) {
		rig := newTestRig(t, nil)
		if err := rig.engine.Start(); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if err := rig.engine.Stop(); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if err := rig.engine.Stop(); err != nil {
			t.Errorf("Expected no error on second stop, got: %v", err)
		}
		if err := rig.engine.Wait(); err != nil {
			t.Errorf("Expected clean wait, got: %v", err)
		}
	})

	t.Run("Hardware Silenced On Stop", func(t *testing.T) {
		rig := newTestRig(t, nil)
		if err := rig.engine.Start(); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		eventually(t, "one beacon cycle", func() bool {
			return rig.engine.Status().Cycles >= 1
		})
		rig.engine.Stop()

		cfg := rig.engine.config.Hardware
		for _, pin := range []int{cfg.PAPin, cfg.ExtPAPin, cfg.TxLEDPin, cfg.PowerLEDPin} {
			if on, _ := rig.gpio.GetPin(pin); on {
				t.Errorf("Expected pin %d low after stop", pin)
			}
		}
		if rig.engine.Status().Hardware.Output {
			t.Error("Expected synthesizer output off after stop")
		}
	})
}

func TestEngineCommands(t *testing.T) {
	t.Run("Submit Applies", func(t *testing.T) {
		rig := newTestRig(t, nil)

		cmd, err := rig.engine.Submit("pause=30")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Field() != protocol.FieldPause {
			t.Errorf("Expected pause command, got %s", cmd.Field())
		}
		if pause := rig.engine.Settings().PauseSeconds; pause != 30 {
			t.Errorf("Expected pause 30, got %d", pause)
		}
	})

	t.Run("Submit Rejects", func(t *testing.T) {
		rig := newTestRig(t, nil)

		if _, err := rig.engine.Submit("wpm=0"); err == nil {
			t.Error("Expected error for wpm=0")
		}
		if wpm := rig.engine.Settings().WPM; wpm != 20 {
			t.Errorf("Expected wpm unchanged at 20, got %d", wpm)
		}
	})

	t.Run("Write Config", func(t *testing.T) {
		rig := newTestRig(t, nil)

		if _, err := rig.engine.Submit("text=TEST DE ON0BCN"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if _, err := rig.engine.Submit("writeconfig"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		saved, err := config.LoadConfig(rig.configPath)
		if err != nil {
			t.Fatalf("Expected saved config to load, got: %v", err)
		}
		if saved.Beacon.Text != "TEST DE ON0BCN" {
			t.Errorf("Expected saved text, got %q", saved.Beacon.Text)
		}
		if saved.Station.Name != "ON0BCN" {
			t.Errorf("Expected station name kept, got %q", saved.Station.Name)
		}
		if saved.Storage.DatabasePath != rig.engine.config.Storage.DatabasePath {
			t.Errorf("Expected other sections kept, got database path %q", saved.Storage.DatabasePath)
		}
	})
}

func TestEngineSubscribe(t *testing.T) {
	rig := newTestRig(t, nil)

	steps, cancel := rig.engine.Subscribe()
	defer cancel()

	if err := rig.engine.Start(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	select {
	case step := <-steps:
		if step.Duration <= 0 {
			t.Errorf("Expected a positive step duration, got %v", step.Duration)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for a keying step")
	}

	cancel()
	cancel()

	rig.engine.subMutex.RLock()
	n := len(rig.engine.subscribers)
	rig.engine.subMutex.RUnlock()
	if n != 0 {
		t.Errorf("Expected no subscribers after cancel, got %d", n)
	}
}
