package beacon

import (
	"context"
	"time"
)

// Transmitter is the hardware the beacon keys: the frequency synthesizer,
// its output enable, the power amplifier lines and the transmit LED
type Transmitter interface {
	SetFrequency(hz int64) error
	Frequency() int64
	SetOutput(enabled bool) error
	SetAmplifier(enabled bool) error
	SetTxIndicator(on bool) error
}

// Sleeper suspends the calling goroutine. Sleep returns early with the
// context error when ctx is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer
type TimerSleeper struct{}

// Sleep waits for d or until ctx is done
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Heartbeat reports task liveness to the watchdog feeder. Expect announces
// a suspension of d so the feeder extends the task's window; Beat marks
// the task as running.
type Heartbeat interface {
	Beat()
	Expect(d time.Duration)
}

type noHeartbeat struct{}

func (noHeartbeat) Beat()                {}
func (noHeartbeat) Expect(time.Duration) {}

// Mode identifies how a message is keyed
type Mode string

const (
	ModeCW      Mode = "cw"
	ModeFSK     Mode = "fsk"
	ModeKeyDown Mode = "keydown"
	ModePause   Mode = "pause"
)

// Step describes one hold of the transmitter in a fixed state
type Step struct {
	Time        time.Time     `json:"time"`
	Mode        Mode          `json:"mode"`
	Char        string        `json:"char,omitempty"`
	Output      bool          `json:"output"`
	Indicator   bool          `json:"indicator"`
	FrequencyHz int64         `json:"frequency_hz"`
	Duration    time.Duration `json:"duration"`
}

// Observer receives every step before it is held
type Observer interface {
	OnStep(Step)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Step)

// OnStep calls f
func (f ObserverFunc) OnStep(s Step) {
	f(s)
}

// Options carries the optional collaborators shared by Keyer and Scheduler
type Options struct {
	Sleeper   Sleeper
	Observer  Observer
	Heartbeat Heartbeat
	Recorder  CycleRecorder
}

func (o Options) withDefaults() Options {
	if o.Sleeper == nil {
		o.Sleeper = TimerSleeper{}
	}
	if o.Heartbeat == nil {
		o.Heartbeat = noHeartbeat{}
	}
	return o
}
