package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/config"
	"github.com/dougsko/cwbeacon/pkg/hardware"
	"github.com/dougsko/cwbeacon/pkg/logging"
	"github.com/dougsko/cwbeacon/pkg/lora"
	"github.com/dougsko/cwbeacon/pkg/protocol"
	"github.com/dougsko/cwbeacon/pkg/remote"
	"github.com/dougsko/cwbeacon/pkg/storage"
	"github.com/dougsko/cwbeacon/pkg/watchdog"
)

// Version is reported in the daemon status
const Version = "0.1.0-dev"

// Task names registered with the watchdog feeder
const (
	TaskBeacon = "beacon"
	TaskLoRa   = "lora"
)

// subscriberBuffer is the step backlog kept per monitor subscriber
const subscriberBuffer = 64

// Components overrides the devices the engine would otherwise open from the
// configuration. Nil fields are built from config.
type Components struct {
	Synthesizer hardware.Synthesizer
	GPIO        hardware.GPIO
	Watchdog    hardware.Watchdog
	Radio       lora.Receiver
	Sleeper     beacon.Sleeper
}

// Engine wires the beacon scheduler, the LoRa listener and the watchdog
// feeder around one shared configuration and runs them until stopped
type Engine struct {
	config     *config.Config
	configPath string
	startTime  time.Time

	beaconConfig *beacon.Config
	hardware     *hardware.Manager
	dog          hardware.Watchdog
	feeder       *watchdog.Feeder
	radio        lora.Receiver
	scheduler    *beacon.Scheduler
	listener     *remote.Listener
	journal      *storage.Journal
	store        *remote.FileStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex     sync.RWMutex
	running   bool
	err       error
	closeOnce sync.Once

	subMutex    sync.RWMutex
	subscribers map[chan beacon.Step]struct{}
}

// New builds an engine from cfg. configPath is where writeconfig saves the
// live settings.
func New(cfg *config.Config, configPath string, parts Components) (*Engine, error) {
	e := &Engine{
		config:       cfg,
		configPath:   configPath,
		startTime:    time.Now(),
		beaconConfig: beacon.NewConfig(beacon.SettingsFromConfig(cfg)),
		subscribers:  make(map[chan beacon.Step]struct{}),
	}

	synth := parts.Synthesizer
	if synth == nil {
		synth = hardware.NewMockSynthesizer(cfg.Hardware.CrystalHz)
	}

	gpio := parts.GPIO
	if gpio == nil {
		if cfg.Hardware.EnableGPIO {
			gpio = hardware.NewLinuxGPIO(hardware.DefaultGPIOPath)
		} else {
			gpio = hardware.NewMockGPIO()
		}
	}

	e.hardware = hardware.NewManager(hardware.HardwareConfig{
		PAPin:       cfg.Hardware.PAPin,
		ExtPAPin:    cfg.Hardware.ExtPAPin,
		OscPin:      cfg.Hardware.OscPin,
		PowerLEDPin: cfg.Hardware.PowerLEDPin,
		TxLEDPin:    cfg.Hardware.TxLEDPin,
		LoRaLEDPin:  cfg.Hardware.LoRaLEDPin,
	}, synth, gpio)

	e.dog = parts.Watchdog
	if e.dog == nil {
		if cfg.Watchdog.Device != "" {
			dog, err := hardware.OpenLinuxWatchdog(cfg.Watchdog.Device)
			if err != nil {
				return nil, err
			}
			e.dog = dog
		} else {
			e.dog = hardware.NewMockWatchdog()
		}
	}

	if cfg.Storage.DatabasePath != "" {
		journal, err := storage.NewJournal(cfg.Storage.DatabasePath, cfg.Storage.MaxRecords)
		if err != nil {
			e.dog.Close()
			return nil, err
		}
		e.journal = journal
	}

	if cfg.LoRa.Enabled {
		e.radio = parts.Radio
		if e.radio == nil {
			radio, err := openRadio(cfg.LoRa)
			if err != nil {
				e.closeResources()
				return nil, err
			}
			e.radio = radio
		}
	}

	timeout := time.Duration(cfg.Watchdog.TimeoutSeconds) * time.Second
	e.feeder = watchdog.NewFeeder(e.dog, timeout)

	beaconOpts := beacon.Options{
		Sleeper:   parts.Sleeper,
		Observer:  e,
		Heartbeat: e.feeder.Register(TaskBeacon, timeout),
	}
	if e.journal != nil {
		beaconOpts.Recorder = e.journal
	}
	e.scheduler = beacon.NewScheduler(e.beaconConfig, e.hardware, beaconOpts)

	e.store = remote.NewFileStore(configPath, cfg)
	listenerOpts := remote.Options{
		Timeout:    time.Duration(cfg.LoRa.TimeoutSeconds) * time.Second,
		Jitter:     cfg.LoRa.JitterSeconds,
		StartDelay: time.Duration(cfg.LoRa.StartDelaySeconds) * time.Second,
		Store:      e.store,
		Indicator:  e.hardware,
		Sleeper:    parts.Sleeper,
	}
	if e.journal != nil {
		listenerOpts.Recorder = e.journal
	}
	if e.radio != nil {
		listenerOpts.Heartbeat = e.feeder.Register(TaskLoRa, timeout)
	}
	e.listener = remote.NewListener(e.radio, e.beaconConfig, listenerOpts)

	return e, nil
}

func openRadio(cfg config.LoRaConfig) (lora.Receiver, error) {
	if cfg.Device == "" {
		logging.Warn("engine", "No LoRa device configured, using mock radio")
		return lora.NewMockRadio(), nil
	}
	radio, err := lora.OpenSerialRadio(lora.SerialConfig{
		Device:      cfg.Device,
		BaudRate:    cfg.BaudRate,
		Address:     cfg.Address,
		NetworkID:   cfg.NetworkID,
		FrequencyHz: cfg.FrequencyHz,
	})
	if err != nil {
		return nil, err
	}
	return radio, nil
}

// Start initializes the hardware and launches the engine tasks
func (e *Engine) Start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.running {
		return fmt.Errorf("engine already running")
	}

	if err := e.hardware.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize hardware manager: %w", err)
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.running = true

	settings := e.beaconConfig.Snapshot()
	logging.Infof("engine", "Beacon %s on %d Hz at %d wpm: %q",
		settings.StationName, settings.Carrier(), settings.WPM, settings.Text)

	e.launch("feeder", e.feeder.Run)
	e.launch("beacon", e.scheduler.Run)
	if e.radio != nil {
		e.launch("lora", e.listener.Run)
	} else {
		logging.Info("engine", "LoRa remote control disabled")
	}

	return nil
}

// launch runs task on its own goroutine. A task failing for any reason
// other than shutdown is logged and kept for Wait; its watchdog task stays
// registered so the device resets.
func (e *Engine) launch(name string, task func(context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		err := task(e.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			logging.Debugf("engine", "Task %s stopped", name)
			return
		}

		logging.Errorf("engine", "Task %s failed: %v", name, err)
		e.mutex.Lock()
		if e.err == nil {
			e.err = fmt.Errorf("%s: %w", name, err)
		}
		e.mutex.Unlock()
	}()
}

// Wait blocks until every task has returned and reports the first failure
func (e *Engine) Wait() error {
	e.wg.Wait()

	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.err
}

// Stop cancels the tasks, waits for them and releases the devices. It is
// safe to call more than once and on an engine that never started.
func (e *Engine) Stop() error {
	e.mutex.Lock()
	if e.running {
		e.running = false
		e.cancel()
	}
	e.mutex.Unlock()

	e.wg.Wait()

	var err error
	e.closeOnce.Do(func() {
		err = e.closeResources()
		logging.Info("engine", "Engine stopped")
	})
	return err
}

func (e *Engine) closeResources() error {
	var errs []error

	if closer, ok := e.radio.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, e.hardware.Close())
	if e.dog != nil {
		errs = append(errs, e.dog.Close())
	}
	if e.journal != nil {
		errs = append(errs, e.journal.Close())
	}

	return errors.Join(errs...)
}

// IsRunning reports whether Start has been called without Stop
func (e *Engine) IsRunning() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.running
}

// OnStep fans keying steps out to monitor subscribers. Slow subscribers
// miss steps rather than stall the keyer.
func (e *Engine) OnStep(step beacon.Step) {
	e.subMutex.RLock()
	defer e.subMutex.RUnlock()

	for ch := range e.subscribers {
		select {
		case ch <- step:
		default:
		}
	}
}

// Subscribe returns a stream of keying steps and a function to end it
func (e *Engine) Subscribe() (<-chan beacon.Step, func()) {
	ch := make(chan beacon.Step, subscriberBuffer)

	e.subMutex.Lock()
	e.subscribers[ch] = struct{}{}
	e.subMutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMutex.Lock()
			delete(e.subscribers, ch)
			e.subMutex.Unlock()
			close(ch)
		})
	}
}

// Status returns a snapshot of the beacon, hardware and control link
func (e *Engine) Status() protocol.Status {
	settings := e.beaconConfig.Snapshot()
	received, applied := e.listener.Stats()

	status := protocol.Status{
		Station:   settings.StationName,
		State:     e.scheduler.State().String(),
		Cycles:    e.scheduler.Completed(),
		Settings:  settings,
		Hardware:  e.hardware.Status(),
		Packets:   received,
		Applied:   applied,
		Feeds:     e.feeder.Feeds(),
		Stalled:   e.feeder.Stalled(),
		Uptime:    time.Since(e.startTime).Round(time.Second).String(),
		StartTime: e.startTime,
		Version:   Version,
	}
	if last, ok := e.scheduler.LastCycle(); ok {
		status.LastCycle = &last
	}
	return status
}

// Settings returns the live beacon settings
func (e *Engine) Settings() beacon.Settings {
	return e.beaconConfig.Snapshot()
}

// Submit applies a "field=value" command from the HTTP API
func (e *Engine) Submit(text string) (protocol.Command, error) {
	return e.listener.Submit(remote.SourceHTTP, text)
}

// Journal returns the command and cycle journal, nil when disabled
func (e *Engine) Journal() *storage.Journal {
	return e.journal
}

// Listener returns the remote control listener
func (e *Engine) Listener() *remote.Listener {
	return e.listener
}
