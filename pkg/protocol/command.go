package protocol

import (
	"fmt"
	"strconv"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/hardware"
)

// Command is one remote configuration change. The set of implementations
// is closed: the types in this file.
type Command interface {
	// Field is the wire field name
	Field() string
	// Value is the wire value, empty for commands without one
	Value() string
	isCommand()
}

// SetText replaces the beacon message
type SetText struct{ Text string }

// SetFrequency sets the base frequency in Hz
type SetFrequency struct{ Hz int64 }

// SetSpeed sets the keying speed in words per minute
type SetSpeed struct{ WPM int }

// SetPause sets the pause between cycles in seconds
type SetPause struct{ Seconds int }

// SetKeyDown sets the unmodulated carrier time in seconds
type SetKeyDown struct{ Seconds int }

// SetOffset sets the offset added to the base frequency in Hz
type SetOffset struct{ Hz int64 }

// SetFSKOffset sets the mark to space shift in Hz
type SetFSKOffset struct{ Hz int64 }

// SetCW enables or disables the CW message
type SetCW struct{ Enabled bool }

// SetFSK enables or disables the FSK message
type SetFSK struct{ Enabled bool }

// WriteConfig persists the live configuration
type WriteConfig struct{}

func (SetText) Field() string      { return FieldText }
func (SetFrequency) Field() string { return FieldFreq }
func (SetSpeed) Field() string     { return FieldWPM }
func (SetPause) Field() string     { return FieldPause }
func (SetKeyDown) Field() string   { return FieldKeyDown }
func (SetOffset) Field() string    { return FieldOffset }
func (SetFSKOffset) Field() string { return FieldFSKOffset }
func (SetCW) Field() string        { return FieldCW }
func (SetFSK) Field() string       { return FieldFSK }
func (WriteConfig) Field() string  { return FieldWriteConfig }

func (c SetText) Value() string      { return c.Text }
func (c SetFrequency) Value() string { return strconv.FormatInt(c.Hz, 10) }
func (c SetSpeed) Value() string     { return strconv.Itoa(c.WPM) }
func (c SetPause) Value() string     { return strconv.Itoa(c.Seconds) }
func (c SetKeyDown) Value() string   { return strconv.Itoa(c.Seconds) }
func (c SetOffset) Value() string    { return strconv.FormatInt(c.Hz, 10) }
func (c SetFSKOffset) Value() string { return strconv.FormatInt(c.Hz, 10) }
func (c SetCW) Value() string        { return boolValue(c.Enabled) }
func (c SetFSK) Value() string       { return boolValue(c.Enabled) }
func (WriteConfig) Value() string    { return "" }

func (SetText) isCommand()      {}
func (SetFrequency) isCommand() {}
func (SetSpeed) isCommand()     {}
func (SetPause) isCommand()     {}
func (SetKeyDown) isCommand()   {}
func (SetOffset) isCommand()    {}
func (SetFSKOffset) isCommand() {}
func (SetCW) isCommand()        {}
func (SetFSK) isCommand()       {}
func (WriteConfig) isCommand()  {}

func boolValue(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Format renders a command in its wire form without the station prefix
func Format(cmd Command) string {
	if _, ok := cmd.(WriteConfig); ok {
		return FieldWriteConfig
	}
	return cmd.Field() + "=" + cmd.Value()
}

// Apply writes cmd into the live configuration. WriteConfig changes
// nothing; persisting is up to the caller. Frequency changes that would
// move the carrier or the FSK space outside the synthesizer range are
// rejected and leave the configuration untouched.
func Apply(cmd Command, cfg *beacon.Config) error {
	if _, ok := cmd.(WriteConfig); ok {
		return nil
	}

	return cfg.TryUpdate(func(s *beacon.Settings) error {
		switch c := cmd.(type) {
		case SetText:
			s.Text = c.Text
		case SetFrequency:
			s.FrequencyHz = c.Hz
		case SetSpeed:
			s.WPM = c.WPM
		case SetPause:
			s.PauseSeconds = c.Seconds
		case SetKeyDown:
			s.KeyDownSeconds = c.Seconds
		case SetOffset:
			s.OffsetHz = c.Hz
		case SetFSKOffset:
			s.FSKOffsetHz = c.Hz
		case SetCW:
			s.CW = c.Enabled
		case SetFSK:
			s.FSK = c.Enabled
		default:
			return fmt.Errorf("unsupported command %T", cmd)
		}

		switch cmd.(type) {
		case SetFrequency, SetOffset, SetFSKOffset:
			return checkCarrier(cmd, *s)
		}
		return nil
	})
}

// checkCarrier verifies both FSK tones can be planned by the synthesizer
func checkCarrier(cmd Command, s beacon.Settings) error {
	for _, tone := range []struct {
		name string
		hz   int64
	}{{"carrier", s.Carrier()}, {"fsk space", s.Space()}} {
		if tone.hz < hardware.MinFrequencyHz || tone.hz > hardware.MaxFrequencyHz {
			return &ValidationError{
				Field:  cmd.Field(),
				Value:  cmd.Value(),
				Reason: fmt.Sprintf("%s %d Hz outside %d..%d Hz", tone.name, tone.hz, hardware.MinFrequencyHz, hardware.MaxFrequencyHz),
			}
		}
	}
	return nil
}
