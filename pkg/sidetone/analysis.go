package sidetone

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	// minFFTSize pads short segments so the peak lands on a fine grid
	minFFTSize = 4096
	// minToneSamples is the shortest segment worth measuring
	minToneSamples = 64
	// ToneTolerance merges measured tones closer than this, in Hz
	ToneTolerance = 10.0
)

// Levels returns the RMS and peak level of samples in dBFS. Silence reads
// -100 dB.
func Levels(samples []int16) (rmsDB, peakDB float64) {
	if len(samples) == 0 {
		return -100, -100
	}

	var sumSquares float64
	var peak float64
	for _, sample := range samples {
		v := math.Abs(float64(sample))
		if v > peak {
			peak = v
		}
		sumSquares += v * v
	}

	rmsDB, peakDB = -100, -100
	if rms := math.Sqrt(sumSquares / float64(len(samples))); rms > 0 {
		rmsDB = 20 * math.Log10(rms/32768)
	}
	if peak > 0 {
		peakDB = 20 * math.Log10(peak/32768)
	}
	return rmsDB, peakDB
}

// DominantTone returns the strongest frequency in samples and its
// magnitude. The segment is Hann windowed and zero padded before the FFT.
func DominantTone(samples []int16, sampleRate int) (hz, magnitude float64) {
	if len(samples) < 2 || sampleRate <= 0 {
		return 0, 0
	}

	size := minFFTSize
	for size < len(samples) {
		size <<= 1
	}

	x := make([]float64, size)
	for i, s := range samples {
		x[i] = float64(s) / 32768
	}
	window.Apply(x[:len(samples)], window.Hann)

	spectrum := fft.FFTReal(x)
	mags := make([]float64, size/2)
	for i := range mags {
		mags[i] = cmplx.Abs(spectrum[i])
	}

	peak := 1
	for i := 2; i < len(mags)-1; i++ {
		if mags[i] > mags[peak] {
			peak = i
		}
	}
	if mags[peak] == 0 {
		return 0, 0
	}

	// parabolic interpolation between neighbouring bins
	bin := float64(peak)
	a, b, c := mags[peak-1], mags[peak], mags[peak+1]
	if d := a - 2*b + c; d != 0 {
		bin += 0.5 * (a - c) / d
	}

	return bin * float64(sampleRate) / float64(size), b
}

// Tones measures every keyed segment of the track and returns the distinct
// tones heard, lowest first
func (t Track) Tones() []float64 {
	var measured []float64
	for _, seg := range t.Segments {
		if !seg.Step.Output || seg.Length < minToneSamples {
			continue
		}
		end := seg.Start + seg.Length
		if end > len(t.Samples) {
			end = len(t.Samples)
		}
		if hz, _ := DominantTone(t.Samples[seg.Start:end], t.SampleRate); hz > 0 {
			measured = append(measured, hz)
		}
	}
	return cluster(measured)
}

func cluster(tones []float64) []float64 {
	if len(tones) == 0 {
		return nil
	}
	sort.Float64s(tones)

	var out []float64
	sum, n := tones[0], 1
	for _, hz := range tones[1:] {
		if hz-sum/float64(n) <= ToneTolerance {
			sum += hz
			n++
			continue
		}
		out = append(out, sum/float64(n))
		sum, n = hz, 1
	}
	return append(out, sum/float64(n))
}
