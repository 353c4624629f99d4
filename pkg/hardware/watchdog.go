package hardware

import (
	"fmt"
	"os"
	"sync"

	"github.com/dougsko/cwbeacon/pkg/logging"
)

// Watchdog is a hardware watchdog timer. The device resets the host when
// Feed is not called within its timeout.
type Watchdog interface {
	Feed() error
	Close() error
}

// LinuxWatchdog drives a /dev/watchdog style character device
type LinuxWatchdog struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// OpenLinuxWatchdog opens the watchdog device. Opening arms the timer.
func OpenLinuxWatchdog(path string) (*LinuxWatchdog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open watchdog %s: %w", path, err)
	}
	logging.Infof("watchdog", "Opened %s", path)
	return &LinuxWatchdog{file: f, path: path}, nil
}

// Feed restarts the device timer
func (w *LinuxWatchdog) Feed() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("watchdog %s closed", w.path)
	}
	if _, err := w.file.Write([]byte{0}); err != nil {
		return fmt.Errorf("failed to feed watchdog: %w", err)
	}
	return nil
}

// Close disarms the timer with the magic close character and releases the
// device
func (w *LinuxWatchdog) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if _, err := w.file.Write([]byte("V")); err != nil {
		logging.Warnf("watchdog", "Magic close failed, device stays armed: %v", err)
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// MockWatchdog counts feeds
type MockWatchdog struct {
	mu     sync.Mutex
	feeds  int
	closed bool
}

// NewMockWatchdog creates a mock watchdog
func NewMockWatchdog() *MockWatchdog {
	return &MockWatchdog{}
}

// Feed records a feed
func (w *MockWatchdog) Feed() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watchdog closed")
	}
	w.feeds++
	return nil
}

// Close marks the watchdog closed
func (w *MockWatchdog) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

// Feeds returns the number of feeds so far
func (w *MockWatchdog) Feeds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.feeds
}
