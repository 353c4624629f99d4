package beacon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dougsko/cwbeacon/pkg/logging"
	"github.com/dougsko/cwbeacon/pkg/morse"
)

// ErrInvalidSpeed is returned when the live configuration has a speed that
// cannot produce keying durations
var ErrInvalidSpeed = errors.New("speed must be positive")

// Keyer walks a message and keys the transmitter symbol by symbol. It
// reads the live configuration at every character boundary, so speed and
// frequency changes take effect on the next character.
type Keyer struct {
	config *Config
	tx     Transmitter
	opts   Options

	// current transmitter state, as last set by this keyer
	output    bool
	indicator bool
}

// NewKeyer creates a keyer for the given configuration and transmitter
func NewKeyer(cfg *Config, tx Transmitter, opts Options) *Keyer {
	return &Keyer{
		config: cfg,
		tx:     tx,
		opts:   opts.withDefaults(),
	}
}

// SendCW keys text as on/off keyed CW on the carrier
func (k *Keyer) SendCW(ctx context.Context, text string) (err error) {
	if err := k.tx.SetAmplifier(true); err != nil {
		return fmt.Errorf("failed to enable amplifier: %w", err)
	}
	defer func() {
		err = errors.Join(err, k.release())
	}()

	for _, char := range text {
		settings := k.config.Snapshot()
		if settings.WPM <= 0 {
			return fmt.Errorf("cw: %w (wpm=%d)", ErrInvalidSpeed, settings.WPM)
		}
		timing := morse.NewTiming(settings.WPM)

		if err := k.tune(settings.Carrier()); err != nil {
			return err
		}
		logging.Debugf("keyer", "CW %c", char)

		c := string(char)
		for _, symbol := range morse.Encode(char).Symbols() {
			switch symbol {
			case morse.Dot, morse.Dash:
				if err := k.key(true); err != nil {
					return err
				}
				if err := k.hold(ctx, ModeCW, c, timing.On(symbol)); err != nil {
					return err
				}
				if err := k.key(false); err != nil {
					return err
				}
				if err := k.hold(ctx, ModeCW, c, timing.SymbolGap); err != nil {
					return err
				}
			case morse.Space:
				if err := k.hold(ctx, ModeCW, c, timing.SpaceGap); err != nil {
					return err
				}
			}
		}

		if err := k.hold(ctx, ModeCW, c, timing.CharGap); err != nil {
			return err
		}
	}

	return nil
}

// SendFSK keys text by shifting the carrier between mark and space. The
// output stays enabled for the whole message.
func (k *Keyer) SendFSK(ctx context.Context, text string) (err error) {
	if err := k.tx.SetAmplifier(true); err != nil {
		return fmt.Errorf("failed to enable amplifier: %w", err)
	}
	defer func() {
		err = errors.Join(err, k.release())
	}()

	settings := k.config.Snapshot()
	if err := k.tune(settings.Space()); err != nil {
		return err
	}
	if err := k.setOutput(true); err != nil {
		return err
	}

	for _, char := range text {
		settings := k.config.Snapshot()
		if settings.WPM <= 0 {
			return fmt.Errorf("fsk: %w (wpm=%d)", ErrInvalidSpeed, settings.WPM)
		}
		timing := morse.NewTiming(settings.WPM)
		mark, space := settings.Carrier(), settings.Space()
		logging.Debugf("keyer", "FSK %c", char)

		c := string(char)
		for _, symbol := range morse.Encode(char).Symbols() {
			switch symbol {
			case morse.Dot, morse.Dash:
				if err := k.tune(mark); err != nil {
					return err
				}
				if err := k.setIndicator(true); err != nil {
					return err
				}
				if err := k.hold(ctx, ModeFSK, c, timing.On(symbol)); err != nil {
					return err
				}
				if err := k.setIndicator(false); err != nil {
					return err
				}
				if err := k.tune(space); err != nil {
					return err
				}
				if err := k.hold(ctx, ModeFSK, c, timing.SymbolGap); err != nil {
					return err
				}
			case morse.Space:
				if err := k.tune(space); err != nil {
					return err
				}
				if err := k.hold(ctx, ModeFSK, c, timing.SpaceGap); err != nil {
					return err
				}
			}
		}

		if err := k.tune(space); err != nil {
			return err
		}
		if err := k.hold(ctx, ModeFSK, c, timing.CharGap); err != nil {
			return err
		}
	}

	return nil
}

// tune programs the synthesizer only when the target differs from the
// frequency already set
func (k *Keyer) tune(hz int64) error {
	if k.tx.Frequency() == hz {
		return nil
	}
	if err := k.tx.SetFrequency(hz); err != nil {
		return fmt.Errorf("failed to set frequency %d Hz: %w", hz, err)
	}
	return nil
}

// key switches output and transmit LED together, as CW keying does
func (k *Keyer) key(on bool) error {
	if err := k.setOutput(on); err != nil {
		return err
	}
	return k.setIndicator(on)
}

func (k *Keyer) setOutput(on bool) error {
	if err := k.tx.SetOutput(on); err != nil {
		return fmt.Errorf("failed to set output %t: %w", on, err)
	}
	k.output = on
	return nil
}

func (k *Keyer) setIndicator(on bool) error {
	if err := k.tx.SetTxIndicator(on); err != nil {
		return fmt.Errorf("failed to set tx indicator %t: %w", on, err)
	}
	k.indicator = on
	return nil
}

// release leaves the transmitter silent and the amplifier off
func (k *Keyer) release() error {
	return errors.Join(
		k.setOutput(false),
		k.setIndicator(false),
		k.tx.SetAmplifier(false),
	)
}

// hold reports the current state to the observer and suspends for d. It is
// the only place a keying goroutine blocks.
func (k *Keyer) hold(ctx context.Context, mode Mode, char string, d time.Duration) error {
	if k.opts.Observer != nil {
		k.opts.Observer.OnStep(Step{
			Time:        time.Now(),
			Mode:        mode,
			Char:        char,
			Output:      k.output,
			Indicator:   k.indicator,
			FrequencyHz: k.tx.Frequency(),
			Duration:    d,
		})
	}

	k.opts.Heartbeat.Expect(d)
	if err := k.opts.Sleeper.Sleep(ctx, d); err != nil {
		return err
	}
	k.opts.Heartbeat.Beat()
	return nil
}
