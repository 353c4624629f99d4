// Package protocol implements the remote control wire format: a three byte
// magic prefix followed by UTF-8 lines of the form "STATION|field=value".
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/hardware"
	"github.com/dougsko/cwbeacon/pkg/morse"
)

// Magic prefixes every remote control packet
var Magic = []byte{0x3C, 0xAA, 0x01}

// Wire field names
const (
	FieldText        = "text"
	FieldFreq        = "freq"
	FieldWPM         = "wpm"
	FieldPause       = "pause"
	FieldKeyDown     = "keydown"
	FieldOffset      = "offset"
	FieldFSKOffset   = "fskoffset"
	FieldCW          = "cw"
	FieldFSK         = "fsk"
	FieldWriteConfig = "writeconfig"
)

var (
	// ErrBadMagic marks a packet without the magic prefix
	ErrBadMagic = errors.New("missing magic prefix")
	// ErrBadEncoding marks a payload that is not valid UTF-8
	ErrBadEncoding = errors.New("payload is not valid UTF-8")
	// ErrNotAddressed marks a line for another station
	ErrNotAddressed = errors.New("not addressed to this station")
	// ErrUnknownField marks a line with an unrecognised field
	ErrUnknownField = errors.New("unknown field")
)

// MaxSeconds bounds the pause and key-down times
const MaxSeconds = 24 * 60 * 60

// ValidationError reports a recognised field with an unacceptable value
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Decode checks the magic prefix and returns the text payload
func Decode(packet []byte) (string, error) {
	if !bytes.HasPrefix(packet, Magic) {
		return "", ErrBadMagic
	}
	payload := packet[len(Magic):]
	if !utf8.Valid(payload) {
		return "", ErrBadEncoding
	}
	return string(payload), nil
}

// Encode frames commands addressed to station, one per line
func Encode(station string, cmds ...Command) []byte {
	lines := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		lines = append(lines, station+"|"+Format(cmd))
	}
	packet := append([]byte(nil), Magic...)
	return append(packet, strings.Join(lines, "\n")...)
}

// Lines splits a payload into its command lines, dropping empty ones
func Lines(payload string) []string {
	var lines []string
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ParseLine parses one "STATION|field=value" line addressed to station
func ParseLine(station, line string) (Command, error) {
	prefix := station + "|"
	if !strings.HasPrefix(line, prefix) {
		return nil, ErrNotAddressed
	}
	return ParseCommand(strings.TrimPrefix(line, prefix))
}

// ParseCommand parses "field=value" or the bare "writeconfig"
func ParseCommand(text string) (Command, error) {
	if strings.TrimSpace(text) == FieldWriteConfig {
		return WriteConfig{}, nil
	}

	field, value, ok := strings.Cut(text, "=")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, text)
	}

	switch field {
	case FieldText:
		return SetText{Text: value}, nil
	case FieldFreq:
		hz, err := parseInt(field, value, 1, hardware.MaxFrequencyHz)
		if err != nil {
			return nil, err
		}
		return SetFrequency{Hz: int64(hz)}, nil
	case FieldWPM:
		wpm, err := parseInt(field, value, 1, morse.MaxWPM)
		if err != nil {
			return nil, err
		}
		return SetSpeed{WPM: wpm}, nil
	case FieldPause:
		secs, err := parseInt(field, value, 0, MaxSeconds)
		if err != nil {
			return nil, err
		}
		return SetPause{Seconds: secs}, nil
	case FieldKeyDown:
		secs, err := parseInt(field, value, 0, MaxSeconds)
		if err != nil {
			return nil, err
		}
		return SetKeyDown{Seconds: secs}, nil
	case FieldOffset:
		hz, err := parseHertz(field, value)
		if err != nil {
			return nil, err
		}
		return SetOffset{Hz: hz}, nil
	case FieldFSKOffset:
		hz, err := parseHertz(field, value)
		if err != nil {
			return nil, err
		}
		return SetFSKOffset{Hz: hz}, nil
	case FieldCW:
		return SetCW{Enabled: value != "False"}, nil
	case FieldFSK:
		return SetFSK{Enabled: value != "False"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

func parseInt(field, value string, min, max int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		var nerr *strconv.NumError
		if errors.As(err, &nerr) && errors.Is(nerr.Err, strconv.ErrRange) {
			return 0, &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf("must be at most %d", max)}
		}
		return 0, &ValidationError{Field: field, Value: value, Reason: "not an integer"}
	}
	if n < min {
		return 0, &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf("must be at least %d", min)}
	}
	if n > max {
		return 0, &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf("must be at most %d", max)}
	}
	return n, nil
}

// parseHertz accepts fractional values and rounds to the nearest Hz. The
// magnitude is capped at the synthesizer's top frequency.
func parseHertz(field, value string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValidationError{Field: field, Value: value, Reason: "not a number"}
	}
	if math.Abs(f) > hardware.MaxFrequencyHz {
		return 0, &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf("magnitude must be at most %d", hardware.MaxFrequencyHz)}
	}
	return int64(math.Round(f)), nil
}

// Status represents the current daemon status
type Status struct {
	Station   string              `json:"station"`
	State     string              `json:"state"`
	Cycles    uint64              `json:"cycles"` // completed cycles
	Settings  beacon.Settings     `json:"settings"`
	LastCycle *beacon.CycleReport `json:"last_cycle,omitempty"`
	Hardware  hardware.Status     `json:"hardware"`
	Packets   uint64              `json:"lora_packets"`
	Applied   uint64              `json:"commands_applied"`
	Feeds     uint64              `json:"watchdog_feeds"`
	Stalled   []string            `json:"stalled,omitempty"`
	Uptime    string              `json:"uptime"`
	StartTime time.Time           `json:"start_time"`
	Version   string              `json:"version"`
}

// CommandRequest is the body of an HTTP command submission
type CommandRequest struct {
	Command string `json:"command"`
}

// Response represents a response to an API request
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// String converts a Response to JSON
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}
