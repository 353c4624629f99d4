package hardware

import (
	"fmt"
	"sync"

	"github.com/dougsko/cwbeacon/pkg/logging"
)

// Synthesizer is a programmable RF clock source
type Synthesizer interface {
	SetFrequency(hz int64) error
	Frequency() int64
	SetOutput(enabled bool) error
	Output() bool
}

const (
	// DefaultCrystalHz is the reference crystal of common Si5351 boards
	DefaultCrystalHz = 25000000

	// maxVCOHz bounds the PLL frequency when choosing the output divider
	maxVCOHz = 900000000

	// PLLDenominator is the largest fractional denominator the PLL accepts
	PLLDenominator = 1048575

	// MinFrequencyHz is the lowest output PlanFrequency accepts
	MinFrequencyHz = 8000
	// MaxFrequencyHz is the highest output, reached with the smallest divider
	MaxFrequencyHz = maxVCOHz / 2
)

// PLLPlan is a fractional PLL setting followed by an integer output divider
type PLLPlan struct {
	Multiplier  int64
	Numerator   int64
	Denominator int64
	Divider     int64
}

// PlanFrequency computes the PLL multiplier and output divider for target.
// The divider is the largest even value keeping the PLL under 900 MHz.
func PlanFrequency(target, crystalHz int64) (PLLPlan, error) {
	if target <= 0 {
		return PLLPlan{}, fmt.Errorf("invalid frequency %d Hz", target)
	}
	if crystalHz <= 0 {
		return PLLPlan{}, fmt.Errorf("invalid crystal frequency %d Hz", crystalHz)
	}

	if target < MinFrequencyHz || target > MaxFrequencyHz {
		return PLLPlan{}, fmt.Errorf("frequency %d Hz out of range", target)
	}

	divider := int64(maxVCOHz / target)
	if divider%2 != 0 {
		divider--
	}
	if divider < 2 {
		return PLLPlan{}, fmt.Errorf("frequency %d Hz out of range", target)
	}

	pll := divider * target
	remainder := pll % crystalHz
	return PLLPlan{
		Multiplier:  pll / crystalHz,
		Numerator:   remainder * PLLDenominator / crystalHz,
		Denominator: PLLDenominator,
		Divider:     divider,
	}, nil
}

// Realised returns the output frequency this plan actually produces
func (p PLLPlan) Realised(crystalHz int64) float64 {
	pll := float64(crystalHz) * (float64(p.Multiplier) + float64(p.Numerator)/float64(p.Denominator))
	return pll / float64(p.Divider)
}

// MockSynthesizer models an Si5351 without touching the I2C bus. It keeps
// the last plan so callers can report the realised frequency.
type MockSynthesizer struct {
	mu        sync.RWMutex
	crystalHz int64
	frequency int64
	plan      PLLPlan
	output    bool
	writes    int
}

// NewMockSynthesizer creates a mock synthesizer with the given crystal
func NewMockSynthesizer(crystalHz int64) *MockSynthesizer {
	if crystalHz <= 0 {
		crystalHz = DefaultCrystalHz
	}
	return &MockSynthesizer{crystalHz: crystalHz}
}

// SetFrequency plans and "programs" the PLL
func (s *MockSynthesizer) SetFrequency(hz int64) error {
	plan, err := PlanFrequency(hz, s.crystalHz)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.frequency = hz
	s.plan = plan
	s.writes++
	s.mu.Unlock()

	logging.Debugf("synth", "PLL mult=%d num=%d denom=%d div=%d",
		plan.Multiplier, plan.Numerator, plan.Denominator, plan.Divider)
	return nil
}

// Frequency returns the last requested frequency
func (s *MockSynthesizer) Frequency() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frequency
}

// MeasuredFrequency returns the frequency the current plan produces
func (s *MockSynthesizer) MeasuredFrequency() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.plan.Divider == 0 {
		return 0
	}
	return s.plan.Realised(s.crystalHz)
}

// SetOutput enables or disables the clock output
func (s *MockSynthesizer) SetOutput(enabled bool) error {
	s.mu.Lock()
	s.output = enabled
	s.mu.Unlock()
	return nil
}

// Output reports whether the clock output is enabled
func (s *MockSynthesizer) Output() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.output
}

// Writes counts frequency programming operations
func (s *MockSynthesizer) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
