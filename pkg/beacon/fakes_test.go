package beacon

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeTransmitter records every call made by the keyer
type fakeTransmitter struct {
	mu        sync.Mutex
	frequency int64
	output    bool
	amplifier bool
	indicator bool

	frequencies []int64
	outputs     []bool
	calls       []string

	failFrequency error
}

func (f *fakeTransmitter) SetFrequency(hz int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFrequency != nil {
		return f.failFrequency
	}
	f.frequency = hz
	f.frequencies = append(f.frequencies, hz)
	f.calls = append(f.calls, fmt.Sprintf("freq=%d", hz))
	return nil
}

func (f *fakeTransmitter) Frequency() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frequency
}

func (f *fakeTransmitter) SetOutput(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.output = enabled
	f.outputs = append(f.outputs, enabled)
	f.calls = append(f.calls, fmt.Sprintf("output=%t", enabled))
	return nil
}

func (f *fakeTransmitter) SetAmplifier(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amplifier = enabled
	f.calls = append(f.calls, fmt.Sprintf("pa=%t", enabled))
	return nil
}

func (f *fakeTransmitter) SetTxIndicator(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indicator = on
	return nil
}

// recordingSleeper returns immediately and remembers every duration. hook,
// when set, runs before the sleep with the zero-based call index.
type recordingSleeper struct {
	mu        sync.Mutex
	durations []time.Duration
	hook      func(call int)
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	call := len(r.durations)
	r.durations = append(r.durations, d)
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return ctx.Err()
}

// stepLog collects observer steps
type stepLog struct {
	mu    sync.Mutex
	steps []Step
}

func (l *stepLog) OnStep(s Step) {
	l.mu.Lock()
	l.steps = append(l.steps, s)
	l.mu.Unlock()
}

func (l *stepLog) byMode(mode Mode) []Step {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Step
	for _, s := range l.steps {
		if s.Mode == mode {
			out = append(out, s)
		}
	}
	return out
}

// countingHeartbeat counts beats and expectations
type countingHeartbeat struct {
	mu      sync.Mutex
	beats   int
	expects []time.Duration
}

func (h *countingHeartbeat) Beat() {
	h.mu.Lock()
	h.beats++
	h.mu.Unlock()
}

func (h *countingHeartbeat) Expect(d time.Duration) {
	h.mu.Lock()
	h.expects = append(h.expects, d)
	h.mu.Unlock()
}

type cycleSink struct {
	mu      sync.Mutex
	reports []CycleReport
}

func (c *cycleSink) RecordCycle(r CycleReport) error {
	c.mu.Lock()
	c.reports = append(c.reports, r)
	c.mu.Unlock()
	return nil
}

func testSettings() Settings {
	return Settings{
		StationName:    "ON0BCN",
		Text:           "SOS",
		WPM:            20,
		FrequencyHz:    10140000,
		OffsetHz:       100,
		FSKOffsetHz:    50,
		KeyDownSeconds: 3,
		PauseSeconds:   10,
		CW:             true,
	}
}
