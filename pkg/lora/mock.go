package lora

import (
	"context"
	"sync"
	"time"
)

// MockRadio delivers injected packets. Every requested timeout is recorded;
// when TimeoutAfter is set it replaces the requested wait so tests do not
// block for the configured receive window.
type MockRadio struct {
	TimeoutAfter time.Duration

	packets chan Packet

	mu       sync.Mutex
	timeouts []time.Duration
}

// NewMockRadio creates a mock radio with room for queued packets
func NewMockRadio() *MockRadio {
	return &MockRadio{packets: make(chan Packet, 64)}
}

// Inject queues a packet for the next Receive
func (m *MockRadio) Inject(payload []byte) {
	m.InjectPacket(Packet{Payload: payload, RSSI: -60, SNR: 9.5})
}

// InjectPacket queues a fully specified packet
func (m *MockRadio) InjectPacket(p Packet) {
	if p.Received.IsZero() {
		p.Received = time.Now()
	}
	m.packets <- p
}

// Receive returns the next injected packet
func (m *MockRadio) Receive(ctx context.Context, timeout time.Duration) (Packet, error) {
	m.mu.Lock()
	m.timeouts = append(m.timeouts, timeout)
	wait := timeout
	if m.TimeoutAfter > 0 {
		wait = m.TimeoutAfter
	}
	m.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case p := <-m.packets:
		return p, nil
	case <-timer.C:
		return Packet{}, ErrTimeout
	}
}

// Timeouts returns the timeouts requested so far
func (m *MockRadio) Timeouts() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.timeouts...)
}
