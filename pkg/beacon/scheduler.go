package beacon

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dougsko/cwbeacon/pkg/logging"
)

// GuardInterval separates key-down from the first keyed symbol so the
// amplifier has settled before the message starts
const GuardInterval = time.Second

// State is the scheduler's position in the beacon cycle
type State int32

const (
	StateIdle State = iota
	StatePausing
	StateKeyDown
	StateTransmittingCW
	StateTransmittingFSK
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePausing:
		return "pausing"
	case StateKeyDown:
		return "keydown"
	case StateTransmittingCW:
		return "transmitting_cw"
	case StateTransmittingFSK:
		return "transmitting_fsk"
	default:
		return "unknown"
	}
}

// CycleReport summarises one completed or failed beacon cycle
type CycleReport struct {
	Number    uint64        `json:"number"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Text      string        `json:"text"`
	WPM       int           `json:"wpm"`
	CarrierHz int64         `json:"carrier_hz"`
	CW        bool          `json:"cw"`
	FSK       bool          `json:"fsk"`
	Error     string        `json:"error,omitempty"`
}

// CycleRecorder persists cycle reports
type CycleRecorder interface {
	RecordCycle(CycleReport) error
}

// Scheduler runs the beacon cycle: pause, key-down, CW message, FSK
// message, forever
type Scheduler struct {
	config *Config
	tx     Transmitter
	keyer  *Keyer
	opts   Options

	state     atomic.Int32
	cycles    atomic.Uint64
	completed atomic.Uint64

	mu        sync.RWMutex
	lastCycle *CycleReport
}

// NewScheduler creates a scheduler keying tx from cfg
func NewScheduler(cfg *Config, tx Transmitter, opts Options) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{
		config: cfg,
		tx:     tx,
		keyer:  NewKeyer(cfg, tx, opts),
		opts:   opts,
	}
}

// State returns the current cycle state
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Cycles returns the number of cycles started so far
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// Completed returns the number of cycles that ran to the end or failed.
// Cycles cut short by cancellation are not counted.
func (s *Scheduler) Completed() uint64 {
	return s.completed.Load()
}

// LastCycle returns the report of the most recent completed cycle, if any
func (s *Scheduler) LastCycle() (CycleReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastCycle == nil {
		return CycleReport{}, false
	}
	return *s.lastCycle, true
}

func (s *Scheduler) setState(state State) {
	s.state.Store(int32(state))
}

// Run repeats the beacon cycle until ctx is cancelled. Hardware errors end
// the cycle early but never the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	logging.Info("beacon", "Beacon scheduler started")
	defer s.setState(StateIdle)

	for {
		if err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				logging.Info("beacon", "Beacon scheduler stopped")
				return ctx.Err()
			}
			logging.Errorf("beacon", "Cycle %d failed: %v", s.Cycles(), err)
		}

		// Never spin without giving peers a chance to run
		runtime.Gosched()
		s.opts.Heartbeat.Beat()
	}
}

// RunCycles runs n cycles and returns the first error
func (s *Scheduler) RunCycles(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := s.RunCycle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunCycle runs a single pause, key-down and transmit cycle
func (s *Scheduler) RunCycle(ctx context.Context) (err error) {
	started := time.Now()
	number := s.cycles.Add(1)
	report := CycleReport{Number: number, Started: started}

	defer func() {
		s.setState(StateIdle)
		report.Duration = time.Since(started)
		if err != nil {
			report.Error = err.Error()
		}
		s.finish(report, ctx.Err() == nil)
	}()

	s.setState(StatePausing)
	pause := s.config.Snapshot().PauseSeconds
	logging.Infof("beacon", "Pause for %d secs", pause)
	if err := s.keyer.hold(ctx, ModePause, "", seconds(pause)); err != nil {
		return err
	}

	s.setState(StateKeyDown)
	if err := s.keyDown(ctx); err != nil {
		return err
	}

	// Mode gates are read once the carrier test is over
	settings := s.config.Snapshot()
	report.WPM = settings.WPM
	report.CarrierHz = settings.Carrier()
	report.CW = settings.CW
	report.FSK = settings.FSK

	if settings.CW {
		s.setState(StateTransmittingCW)
		text := s.config.Snapshot().Text
		report.Text = text
		logging.Info("beacon", "Sending CW", logging.Fields{"text": text, "wpm": settings.WPM})
		if err := s.keyer.SendCW(ctx, text); err != nil {
			return fmt.Errorf("cw transmission: %w", err)
		}
	}

	if settings.FSK {
		s.setState(StateTransmittingFSK)
		text := s.config.Snapshot().Text
		report.Text = text
		logging.Info("beacon", "Sending FSK", logging.Fields{"text": text, "wpm": settings.WPM, "shift": settings.FSKOffsetHz})
		if err := s.keyer.SendFSK(ctx, text); err != nil {
			return fmt.Errorf("fsk transmission: %w", err)
		}
	}

	return nil
}

// keyDown transmits an unmodulated carrier for the configured time, then
// waits out the guard interval
func (s *Scheduler) keyDown(ctx context.Context) (err error) {
	settings := s.config.Snapshot()

	if err := s.tx.SetAmplifier(true); err != nil {
		return fmt.Errorf("failed to enable amplifier: %w", err)
	}
	released := false
	defer func() {
		if !released {
			err = errors.Join(err, s.keyer.release())
		}
	}()

	if err := s.keyer.tune(settings.Carrier()); err != nil {
		return err
	}
	if err := s.keyer.setOutput(true); err != nil {
		return err
	}

	logging.Infof("beacon", "Key down for %d secs on %d Hz", settings.KeyDownSeconds, settings.Carrier())
	if err := s.keyer.hold(ctx, ModeKeyDown, "", seconds(settings.KeyDownSeconds)); err != nil {
		return err
	}

	released = true
	if err := s.keyer.release(); err != nil {
		return err
	}

	return s.keyer.hold(ctx, ModeKeyDown, "", GuardInterval)
}

func (s *Scheduler) finish(report CycleReport, record bool) {
	if !record {
		return
	}

	s.mu.Lock()
	s.lastCycle = &report
	s.mu.Unlock()

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.RecordCycle(report); err != nil {
			logging.Warnf("beacon", "Failed to record cycle %d: %v", report.Number, err)
		}
	}
	// counted once the report is journaled
	s.completed.Add(1)
}

func seconds(n int) time.Duration {
	if n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
