package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dougsko/cwbeacon/pkg/logging"
)

// DefaultGPIOPath is the sysfs GPIO class directory
const DefaultGPIOPath = "/sys/class/gpio"

// GPIO drives digital output lines
type GPIO interface {
	Initialize() error
	Close() error
	SetPin(pin int, value bool) error
	GetPin(pin int) (bool, error)
}

// LinuxGPIO implements GPIO using Linux sysfs
type LinuxGPIO struct {
	base         string
	exportedPins map[int]bool
	mutex        sync.Mutex
}

// NewLinuxGPIO creates a sysfs GPIO rooted at base, DefaultGPIOPath if empty
func NewLinuxGPIO(base string) *LinuxGPIO {
	if base == "" {
		base = DefaultGPIOPath
	}
	return &LinuxGPIO{
		base:         base,
		exportedPins: make(map[int]bool),
	}
}

// Initialize checks that the GPIO class directory exists
func (g *LinuxGPIO) Initialize() error {
	if _, err := os.Stat(g.base); os.IsNotExist(err) {
		return fmt.Errorf("GPIO not available at %s", g.base)
	}

	logging.Infof("gpio", "Initialized at %s", g.base)
	return nil
}

// Close drives every exported line low and unexports it
func (g *LinuxGPIO) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for pin := range g.exportedPins {
		if err := g.writeValue(pin, false); err != nil {
			logging.Warnf("gpio", "Failed to clear pin %d: %v", pin, err)
		}
		if err := g.unexportPin(pin); err != nil {
			logging.Warnf("gpio", "%v", err)
		}
	}
	g.exportedPins = make(map[int]bool)

	logging.Info("gpio", "Closed")
	return nil
}

// SetPin drives a line, exporting it as an output on first use
func (g *LinuxGPIO) SetPin(pin int, value bool) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if err := g.ensureExported(pin, "out"); err != nil {
		return err
	}
	return g.writeValue(pin, value)
}

// GetPin reads a line
func (g *LinuxGPIO) GetPin(pin int) (bool, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if err := g.ensureExported(pin, "in"); err != nil {
		return false, err
	}

	data, err := os.ReadFile(g.pinFile(pin, "value"))
	if err != nil {
		return false, fmt.Errorf("failed to read pin %d value: %w", pin, err)
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

func (g *LinuxGPIO) ensureExported(pin int, direction string) error {
	if g.exportedPins[pin] {
		return nil
	}
	if err := g.exportPin(pin); err != nil {
		return fmt.Errorf("failed to export pin %d: %w", pin, err)
	}
	if err := os.WriteFile(g.pinFile(pin, "direction"), []byte(direction), 0644); err != nil {
		return fmt.Errorf("failed to set pin %d direction to %s: %w", pin, direction, err)
	}
	g.exportedPins[pin] = true
	return nil
}

func (g *LinuxGPIO) writeValue(pin int, value bool) error {
	v := "0"
	if value {
		v = "1"
	}
	if err := os.WriteFile(g.pinFile(pin, "value"), []byte(v), 0644); err != nil {
		return fmt.Errorf("failed to set pin %d value: %w", pin, err)
	}
	return nil
}

func (g *LinuxGPIO) pinDir(pin int) string {
	return filepath.Join(g.base, fmt.Sprintf("gpio%d", pin))
}

func (g *LinuxGPIO) pinFile(pin int, name string) string {
	return filepath.Join(g.pinDir(pin), name)
}

// exportPin exports a line to userspace and waits for its directory
func (g *LinuxGPIO) exportPin(pin int) error {
	if _, err := os.Stat(g.pinDir(pin)); err == nil {
		return nil
	}

	if err := os.WriteFile(filepath.Join(g.base, "export"), []byte(strconv.Itoa(pin)), 0644); err != nil {
		return err
	}

	// the kernel creates the directory asynchronously
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(g.pinDir(pin)); err == nil {
			logging.Debugf("gpio", "Exported pin %d", pin)
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}

	return fmt.Errorf("pin %d directory did not appear after export", pin)
}

func (g *LinuxGPIO) unexportPin(pin int) error {
	if err := os.WriteFile(filepath.Join(g.base, "unexport"), []byte(strconv.Itoa(pin)), 0644); err != nil {
		return fmt.Errorf("failed to unexport GPIO pin %d: %w", pin, err)
	}
	logging.Debugf("gpio", "Unexported pin %d", pin)
	return nil
}
