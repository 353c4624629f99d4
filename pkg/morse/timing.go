package morse

import "time"

// ParisUnits is the number of dit units in the reference word "PARIS "
const ParisUnits = 50

// MaxWPM is the fastest speed accepted; the dit stays at least 1 ms
const MaxWPM = 1200

// DitSeconds returns the dit length in seconds for a speed in words per minute
func DitSeconds(wpm int) float64 {
	return 60.0 / float64(wpm) / ParisUnits
}

// DitDuration returns the dit length for a speed in words per minute.
// wpm must be in 1..MaxWPM.
func DitDuration(wpm int) time.Duration {
	return time.Minute / time.Duration(wpm*ParisUnits)
}

// Timing holds every keying duration derived from one speed setting
type Timing struct {
	WPM int

	Dit       time.Duration // key down for a dot
	Dah       time.Duration // key down for a dash
	SymbolGap time.Duration // silence after each dot or dash
	SpaceGap  time.Duration // silence for an explicit space symbol
	CharGap   time.Duration // silence after each character
}

// NewTiming derives all durations from wpm
func NewTiming(wpm int) Timing {
	dit := DitDuration(wpm)
	return Timing{
		WPM:       wpm,
		Dit:       dit,
		Dah:       3 * dit,
		SymbolGap: dit,
		SpaceGap:  4 * dit,
		CharGap:   2 * dit,
	}
}

// On returns the key-down duration for a symbol, zero for a space
func (t Timing) On(s Symbol) time.Duration {
	switch s {
	case Dot:
		return t.Dit
	case Dash:
		return t.Dah
	default:
		return 0
	}
}

// MessageDuration estimates how long text takes to key at this speed
func (t Timing) MessageDuration(text string) time.Duration {
	var total time.Duration
	for _, r := range text {
		total += time.Duration(Encode(r).Units())*t.Dit + t.CharGap
	}
	return total
}
