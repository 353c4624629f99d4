package hardware

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dougsko/cwbeacon/pkg/logging"
)

// HardwareConfig maps the beacon signals to GPIO lines
type HardwareConfig struct {
	PAPin       int
	ExtPAPin    int
	OscPin      int
	PowerLEDPin int
	TxLEDPin    int
	LoRaLEDPin  int
}

// Status is a snapshot of the transmitter hardware
type Status struct {
	Initialized bool    `json:"initialized"`
	FrequencyHz int64   `json:"frequency_hz"`
	MeasuredHz  float64 `json:"measured_hz,omitempty"`
	Output      bool    `json:"output"`
	Amplifier   bool    `json:"amplifier"`
	TxLED       bool    `json:"tx_led"`
	PowerLED    bool    `json:"power_led"`
	LoRaPackets uint64  `json:"lora_packets"`
}

// measurer is implemented by synthesizers that can report the frequency
// they actually produce
type measurer interface {
	MeasuredFrequency() float64
}

// Manager owns the synthesizer and the GPIO lines around it: amplifier
// enables, oscillator line and the three LEDs
type Manager struct {
	config HardwareConfig
	synth  Synthesizer
	gpio   GPIO
	mutex  sync.RWMutex

	amplifier   bool
	txLED       bool
	powerLED    bool
	loraPackets uint64

	initialized bool
}

// NewManager creates a manager for the given synthesizer and GPIO
func NewManager(config HardwareConfig, synth Synthesizer, gpio GPIO) *Manager {
	return &Manager{
		config: config,
		synth:  synth,
		gpio:   gpio,
	}
}

// Initialize drives every line to its idle level and lights the power LED
func (h *Manager) Initialize() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initialized {
		return nil
	}

	logging.Info("hardware", "Initializing hardware manager...")

	if err := h.gpio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize GPIO: %w", err)
	}

	for _, pin := range []int{h.config.PAPin, h.config.ExtPAPin, h.config.OscPin, h.config.TxLEDPin, h.config.LoRaLEDPin} {
		if err := h.gpio.SetPin(pin, false); err != nil {
			return fmt.Errorf("failed to clear pin %d: %w", pin, err)
		}
	}
	if err := h.synth.SetOutput(false); err != nil {
		return fmt.Errorf("failed to disable synthesizer output: %w", err)
	}

	if err := h.gpio.SetPin(h.config.PowerLEDPin, true); err != nil {
		return fmt.Errorf("failed to set power LED: %w", err)
	}
	h.powerLED = true

	h.initialized = true
	logging.Infof("hardware", "Hardware initialized (PA pin: %d, ext PA pin: %d, TX LED pin: %d)",
		h.config.PAPin, h.config.ExtPAPin, h.config.TxLEDPin)
	return nil
}

// Close silences the transmitter and releases the GPIO
func (h *Manager) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initialized {
		return nil
	}

	logging.Info("hardware", "Shutting down hardware manager...")

	err := errors.Join(
		h.synth.SetOutput(false),
		h.setAmplifierLocked(false),
		h.gpio.SetPin(h.config.TxLEDPin, false),
		h.gpio.SetPin(h.config.PowerLEDPin, false),
	)
	h.txLED = false
	h.powerLED = false

	if cerr := h.gpio.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close GPIO: %w", cerr))
	}

	h.initialized = false
	logging.Info("hardware", "Hardware manager shut down")
	return err
}

// SetFrequency programs the synthesizer
func (h *Manager) SetFrequency(hz int64) error {
	if err := h.synth.SetFrequency(hz); err != nil {
		return err
	}
	if m, ok := h.synth.(measurer); ok {
		logging.Debugf("hardware", "Measured frequency: %.6f MHz", m.MeasuredFrequency()/1e6)
	}
	return nil
}

// Frequency returns the frequency last programmed
func (h *Manager) Frequency() int64 {
	return h.synth.Frequency()
}

// SetOutput enables or disables the synthesizer output
func (h *Manager) SetOutput(enabled bool) error {
	return h.synth.SetOutput(enabled)
}

// SetAmplifier switches the PA and external PA lines together
func (h *Manager) SetAmplifier(enabled bool) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.setAmplifierLocked(enabled)
}

// setAmplifierLocked must be called with the lock held
func (h *Manager) setAmplifierLocked(enabled bool) error {
	if h.amplifier == enabled {
		return nil
	}
	if err := h.gpio.SetPin(h.config.ExtPAPin, enabled); err != nil {
		return fmt.Errorf("failed to set external PA: %w", err)
	}
	if err := h.gpio.SetPin(h.config.PAPin, enabled); err != nil {
		return fmt.Errorf("failed to set PA: %w", err)
	}
	h.amplifier = enabled
	logging.Debugf("hardware", "PA %s", onOff(enabled))
	return nil
}

// SetTxIndicator drives the transmit LED
func (h *Manager) SetTxIndicator(on bool) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.txLED == on {
		return nil
	}
	if err := h.gpio.SetPin(h.config.TxLEDPin, on); err != nil {
		return fmt.Errorf("failed to set TX LED: %w", err)
	}
	h.txLED = on
	return nil
}

// PulseLoRaLED lights the LoRa activity LED for d. It blocks for d.
func (h *Manager) PulseLoRaLED(d time.Duration) error {
	h.mutex.Lock()
	h.loraPackets++
	err := h.gpio.SetPin(h.config.LoRaLEDPin, true)
	h.mutex.Unlock()
	if err != nil {
		return fmt.Errorf("failed to set LoRa LED: %w", err)
	}

	time.Sleep(d)

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.gpio.SetPin(h.config.LoRaLEDPin, false); err != nil {
		return fmt.Errorf("failed to clear LoRa LED: %w", err)
	}
	return nil
}

// Status returns a snapshot of the hardware state
func (h *Manager) Status() Status {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	status := Status{
		Initialized: h.initialized,
		FrequencyHz: h.synth.Frequency(),
		Output:      h.synth.Output(),
		Amplifier:   h.amplifier,
		TxLED:       h.txLED,
		PowerLED:    h.powerLED,
		LoRaPackets: h.loraPackets,
	}
	if m, ok := h.synth.(measurer); ok {
		status.MeasuredHz = m.MeasuredFrequency()
	}
	return status
}

// IsInitialized returns whether hardware is initialized
func (h *Manager) IsInitialized() bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.initialized
}

// GetConfig returns the hardware configuration
func (h *Manager) GetConfig() HardwareConfig {
	return h.config
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
