package hardware

import (
	"math"
	"testing"
)

func TestMockGPIO(t *testing.T) {
	gpio := NewMockGPIO()

	t.Run("Initialize", func(t *testing.T) {
		if err := gpio.Initialize(); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})

	t.Run("Set and Get Pin", func(t *testing.T) {
		pin := 10

		if err := gpio.SetPin(pin, true); err != nil {
			t.Errorf("Failed to set pin high: %v", err)
		}
		value, err := gpio.GetPin(pin)
		if err != nil {
			t.Errorf("Failed to get pin value: %v", err)
		}
		if !value {
			t.Error("Expected pin to be high")
		}

		if err := gpio.SetPin(pin, false); err != nil {
			t.Errorf("Failed to set pin low: %v", err)
		}
		value, _ = gpio.GetPin(pin)
		if value {
			t.Error("Expected pin to be low")
		}
	})

	t.Run("Transitions", func(t *testing.T) {
		pin := 11
		gpio.SetPin(pin, false)
		gpio.SetPin(pin, true)
		gpio.SetPin(pin, true)
		gpio.SetPin(pin, false)

		if got := gpio.Transitions(pin); got != 2 {
			t.Errorf("Expected 2 transitions, got %d", got)
		}
	})

	t.Run("Close", func(t *testing.T) {
		if err := gpio.Close(); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})
}

func TestPlanFrequency(t *testing.T) {
	t.Run("30m Beacon", func(t *testing.T) {
		plan, err := PlanFrequency(10140100, DefaultCrystalHz)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if plan.Divider != 88 {
			t.Errorf("Expected divider 88, got %d", plan.Divider)
		}
		if plan.Multiplier != 35 {
			t.Errorf("Expected multiplier 35, got %d", plan.Multiplier)
		}
		if plan.Numerator != 726821 {
			t.Errorf("Expected numerator 726821, got %d", plan.Numerator)
		}
		if plan.Denominator != PLLDenominator {
			t.Errorf("Expected denominator %d, got %d", PLLDenominator, plan.Denominator)
		}
	})

	t.Run("Divider Is Even", func(t *testing.T) {
		for _, f := range []int64{1838000, 3568000, 7030000, 14097100, 28222000, 50080000} {
			plan, err := PlanFrequency(f, DefaultCrystalHz)
			if err != nil {
				t.Fatalf("Unexpected error for %d: %v", f, err)
			}
			if plan.Divider%2 != 0 {
				t.Errorf("Expected even divider for %d, got %d", f, plan.Divider)
			}
			if plan.Divider*f > maxVCOHz {
				t.Errorf("PLL above 900 MHz for %d", f)
			}
		}
	})

	t.Run("Range Edges", func(t *testing.T) {
		for _, f := range []int64{MinFrequencyHz, MaxFrequencyHz} {
			plan, err := PlanFrequency(f, DefaultCrystalHz)
			if err != nil {
				t.Fatalf("Expected %d Hz to plan, got: %v", f, err)
			}
			if plan.Divider < 2 {
				t.Errorf("Expected divider of at least 2 for %d, got %d", f, plan.Divider)
			}
		}
	})

	t.Run("Realised Within One Hertz", func(t *testing.T) {
		for _, f := range []int64{7030000, 10140100, 14097100} {
			plan, _ := PlanFrequency(f, DefaultCrystalHz)
			if diff := math.Abs(plan.Realised(DefaultCrystalHz) - float64(f)); diff >= 1 {
				t.Errorf("Expected realised frequency within 1 Hz of %d, off by %f", f, diff)
			}
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		if _, err := PlanFrequency(0, DefaultCrystalHz); err == nil {
			t.Error("Expected error for zero frequency")
		}
		if _, err := PlanFrequency(1000000000, DefaultCrystalHz); err == nil {
			t.Error("Expected error above the PLL range")
		}
		if _, err := PlanFrequency(MaxFrequencyHz+1, DefaultCrystalHz); err == nil {
			t.Error("Expected error just above the top frequency")
		}
		if _, err := PlanFrequency(MinFrequencyHz-1, DefaultCrystalHz); err == nil {
			t.Error("Expected error below the bottom frequency")
		}
		if _, err := PlanFrequency(7030000, 0); err == nil {
			t.Error("Expected error for zero crystal")
		}
	})
}

func TestMockSynthesizer(t *testing.T) {
	synth := NewMockSynthesizer(0)

	if synth.MeasuredFrequency() != 0 {
		t.Error("Expected no measured frequency before programming")
	}

	if err := synth.SetFrequency(7030000); err != nil {
		t.Fatalf("Failed to set frequency: %v", err)
	}
	if synth.Frequency() != 7030000 {
		t.Errorf("Expected 7030000, got %d", synth.Frequency())
	}
	if math.Abs(synth.MeasuredFrequency()-7030000) >= 1 {
		t.Errorf("Expected measured frequency near 7030000, got %f", synth.MeasuredFrequency())
	}

	if err := synth.SetFrequency(-1); err == nil {
		t.Error("Expected error for negative frequency")
	}
	if synth.Frequency() != 7030000 {
		t.Error("Expected failed programming to keep the previous frequency")
	}
	if synth.Writes() != 1 {
		t.Errorf("Expected 1 write, got %d", synth.Writes())
	}

	synth.SetOutput(true)
	if !synth.Output() {
		t.Error("Expected output enabled")
	}
}

func TestMockWatchdog(t *testing.T) {
	wd := NewMockWatchdog()
	for i := 0; i < 3; i++ {
		if err := wd.Feed(); err != nil {
			t.Fatalf("Unexpected feed error: %v", err)
		}
	}
	if wd.Feeds() != 3 {
		t.Errorf("Expected 3 feeds, got %d", wd.Feeds())
	}

	wd.Close()
	if err := wd.Feed(); err == nil {
		t.Error("Expected error feeding a closed watchdog")
	}
}
