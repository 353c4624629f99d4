package hardware

import (
	"sync"

	"github.com/dougsko/cwbeacon/pkg/logging"
)

// MockGPIO implements GPIO in memory and counts transitions per pin
type MockGPIO struct {
	pins        map[int]bool
	transitions map[int]int
	mu          sync.RWMutex
}

// NewMockGPIO creates a new mock GPIO
func NewMockGPIO() *MockGPIO {
	return &MockGPIO{
		pins:        make(map[int]bool),
		transitions: make(map[int]int),
	}
}

// Initialize initializes the mock GPIO
func (g *MockGPIO) Initialize() error {
	logging.Info("gpio", "Mock GPIO initialized")
	return nil
}

// Close closes the mock GPIO
func (g *MockGPIO) Close() error {
	logging.Info("gpio", "Mock GPIO closed")
	return nil
}

// SetPin sets a pin value
func (g *MockGPIO) SetPin(pin int, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pins[pin] != value {
		g.transitions[pin]++
	}
	g.pins[pin] = value
	logging.Debugf("gpio", "Pin %d set to %t", pin, value)
	return nil
}

// GetPin gets a pin value
func (g *MockGPIO) GetPin(pin int) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pins[pin], nil
}

// Transitions returns how often a pin changed level
func (g *MockGPIO) Transitions(pin int) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.transitions[pin]
}
