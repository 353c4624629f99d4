// Package sidetone renders keying steps to 16-bit PCM and measures the
// tones in the result.
package sidetone

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/dougsko/cwbeacon/pkg/beacon"
)

const (
	// DefaultSampleRate is the PCM sample rate in Hz
	DefaultSampleRate = 8000
	// DefaultToneHz is the audio pitch of the reference carrier
	DefaultToneHz = 700.0
	// DefaultAmplitude is the peak level as a fraction of full scale
	DefaultAmplitude = 0.5
)

// Segment locates the samples rendered for one step
type Segment struct {
	Step   beacon.Step
	Start  int
	Length int
}

// Track is rendered audio plus the steps it came from
type Track struct {
	SampleRate int
	Samples    []int16
	Segments   []Segment
}

// Duration returns the playing time of the track
func (t Track) Duration() time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(t.Samples)) * time.Second / time.Duration(t.SampleRate)
}

// WritePCM writes the samples as raw little-endian signed 16-bit mono
func (t Track) WritePCM(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, t.Samples)
}

// Renderer turns steps into audio. RF frequencies map to audio pitch
// relative to ReferenceHz, which sounds at ToneHz. Renderer implements
// beacon.Observer so it can listen to a live keyer.
type Renderer struct {
	SampleRate  int
	ToneHz      float64
	ReferenceHz int64
	Amplitude   float64

	mu    sync.Mutex
	phase float64
	track Track
}

// NewRenderer creates a renderer with the default rate, pitch and level
func NewRenderer(referenceHz int64) *Renderer {
	return &Renderer{
		SampleRate:  DefaultSampleRate,
		ToneHz:      DefaultToneHz,
		ReferenceHz: referenceHz,
		Amplitude:   DefaultAmplitude,
	}
}

// Render renders steps on a fresh default renderer
func Render(referenceHz int64, steps []beacon.Step) Track {
	r := NewRenderer(referenceHz)
	for _, step := range steps {
		r.OnStep(step)
	}
	return r.Track()
}

// Pitch returns the audio frequency for an RF frequency
func (r *Renderer) Pitch(hz int64) float64 {
	return r.ToneHz + float64(hz-r.ReferenceHz)
}

// OnStep appends the audio for one step
func (r *Renderer) OnStep(step beacon.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.track.SampleRate = r.SampleRate
	n := int(math.Round(step.Duration.Seconds() * float64(r.SampleRate)))
	if n < 0 {
		n = 0
	}
	r.track.Segments = append(r.track.Segments, Segment{
		Step:   step,
		Start:  len(r.track.Samples),
		Length: n,
	})

	if !step.Output {
		r.track.Samples = append(r.track.Samples, make([]int16, n)...)
		r.phase = 0
		return
	}

	// phase carries across steps so FSK shifts stay click free
	inc := 2 * math.Pi * r.Pitch(step.FrequencyHz) / float64(r.SampleRate)
	scale := r.Amplitude * 32767
	for i := 0; i < n; i++ {
		r.track.Samples = append(r.track.Samples, int16(scale*math.Sin(r.phase)))
		r.phase = math.Mod(r.phase+inc, 2*math.Pi)
	}
}

// Track returns a copy of everything rendered so far
func (r *Renderer) Track() Track {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Track{
		SampleRate: r.SampleRate,
		Samples:    append([]int16(nil), r.track.Samples...),
		Segments:   append([]Segment(nil), r.track.Segments...),
	}
}

// Reset discards the rendered audio
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track = Track{}
	r.phase = 0
}
