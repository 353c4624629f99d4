package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/morse"
)

func TestDecode(t *testing.T) {
	t.Run("Valid Packet", func(t *testing.T) {
		text, err := Decode([]byte("\x3c\xaa\x01B1|wpm=25"))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if text != "B1|wpm=25" {
			t.Errorf("Expected payload 'B1|wpm=25', got %q", text)
		}
	})

	t.Run("Bad Magic", func(t *testing.T) {
		for _, packet := range [][]byte{
			nil,
			{0x3C, 0xAA},
			[]byte("B1|wpm=25"),
			{0x3C, 0xAA, 0x02, 'x'},
		} {
			if _, err := Decode(packet); !errors.Is(err, ErrBadMagic) {
				t.Errorf("Expected ErrBadMagic for %q, got %v", packet, err)
			}
		}
	})

	t.Run("Invalid UTF-8", func(t *testing.T) {
		_, err := Decode([]byte{0x3C, 0xAA, 0x01, 0xff, 0xfe})
		if !errors.Is(err, ErrBadEncoding) {
			t.Errorf("Expected ErrBadEncoding, got %v", err)
		}
	})
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		expected Command
	}{
		{"B1|text=CQ TEST DE B1", SetText{Text: "CQ TEST DE B1"}},
		{"B1|text=a=b", SetText{Text: "a=b"}},
		{"B1|text=", SetText{Text: ""}},
		{"B1|freq=7030000", SetFrequency{Hz: 7030000}},
		{"B1|wpm=25", SetSpeed{WPM: 25}},
		{"B1|pause=0", SetPause{Seconds: 0}},
		{"B1|keydown=7", SetKeyDown{Seconds: 7}},
		{"B1|offset=100.4", SetOffset{Hz: 100}},
		{"B1|offset=-12.5", SetOffset{Hz: -13}},
		{"B1|fskoffset=50", SetFSKOffset{Hz: 50}},
		{"B1|cw=False", SetCW{Enabled: false}},
		{"B1|cw=True", SetCW{Enabled: true}},
		{"B1|cw=false", SetCW{Enabled: true}},
		{"B1|fsk=0", SetFSK{Enabled: true}},
		{"B1|fsk=False", SetFSK{Enabled: false}},
		{"B1|writeconfig", WriteConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := ParseLine("B1", tt.line)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if !reflect.DeepEqual(cmd, tt.expected) {
				t.Errorf("Expected %#v, got %#v", tt.expected, cmd)
			}
		})
	}
}

func TestParseLineErrors(t *testing.T) {
	t.Run("Not Addressed", func(t *testing.T) {
		for _, line := range []string{"B2|wpm=25", "wpm=25", "b1|wpm=25", "B1 |wpm=25"} {
			if _, err := ParseLine("B1", line); !errors.Is(err, ErrNotAddressed) {
				t.Errorf("Expected ErrNotAddressed for %q, got %v", line, err)
			}
		}
	})

	t.Run("Unknown Field", func(t *testing.T) {
		for _, line := range []string{"B1|call=N0CALL", "B1|reboot", "B1|WPM=25"} {
			if _, err := ParseLine("B1", line); !errors.Is(err, ErrUnknownField) {
				t.Errorf("Expected ErrUnknownField for %q, got %v", line, err)
			}
		}
	})

	t.Run("Validation", func(t *testing.T) {
		for _, line := range []string{
			"B1|wpm=0",
			"B1|wpm=-5",
			"B1|wpm=fast",
			"B1|freq=0",
			"B1|freq=7.03",
			"B1|pause=-1",
			"B1|keydown=-1",
			"B1|offset=abc",
			"B1|fskoffset=NaN",
			"B1|wpm=2000000000",
			"B1|wpm=9223372036854775807",
			"B1|wpm=99999999999999999999",
			"B1|freq=2000000000",
			"B1|pause=100000000000",
			"B1|keydown=999999",
			"B1|offset=1e300",
			"B1|fskoffset=-9e18",
		} {
			_, err := ParseLine("B1", line)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Expected ValidationError for %q, got %v", line, err)
				continue
			}
			field := strings.TrimPrefix(strings.SplitN(line, "=", 2)[0], "B1|")
			if verr.Field != field {
				t.Errorf("Expected field %s, got %s", field, verr.Field)
			}
		}
	})
}

func TestLines(t *testing.T) {
	lines := Lines("B1|wpm=25\r\n\nB1|text=HI \n  \nB1|writeconfig")
	expected := []string{"B1|wpm=25", "B1|text=HI ", "B1|writeconfig"}
	if !reflect.DeepEqual(lines, expected) {
		t.Errorf("Expected %q, got %q", expected, lines)
	}
}

func TestEncode(t *testing.T) {
	packet := Encode("B1", SetSpeed{WPM: 25}, SetCW{Enabled: false}, WriteConfig{})

	text, err := Decode(packet)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if text != "B1|wpm=25\nB1|cw=False\nB1|writeconfig" {
		t.Errorf("Unexpected payload %q", text)
	}

	lines := Lines(text)
	cmd, err := ParseLine("B1", lines[1])
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cmd != (SetCW{Enabled: false}) {
		t.Errorf("Expected cw disabled, got %#v", cmd)
	}
}

func TestApply(t *testing.T) {
	cfg := beacon.NewConfig(beacon.Settings{StationName: "B1", Text: "OLD", WPM: 20, FrequencyHz: 10140000, CW: true})

	cmds := []Command{
		SetText{Text: "NEW"},
		SetFrequency{Hz: 7030000},
		SetSpeed{WPM: 25},
		SetPause{Seconds: 30},
		SetKeyDown{Seconds: 2},
		SetOffset{Hz: 600},
		SetFSKOffset{Hz: 170},
		SetCW{Enabled: false},
		SetFSK{Enabled: true},
		WriteConfig{},
	}
	for _, cmd := range cmds {
		if err := Apply(cmd, cfg); err != nil {
			t.Fatalf("Failed to apply %T: %v", cmd, err)
		}
	}

	expected := beacon.Settings{
		StationName:    "B1",
		Text:           "NEW",
		WPM:            25,
		FrequencyHz:    7030000,
		OffsetHz:       600,
		FSKOffsetHz:    170,
		KeyDownSeconds: 2,
		PauseSeconds:   30,
		CW:             false,
		FSK:            true,
	}
	if got := cfg.Snapshot(); got != expected {
		t.Errorf("Expected %+v, got %+v", expected, got)
	}
	if cfg.Revision() != 9 {
		t.Errorf("Expected 9 revisions, WriteConfig changing nothing, got %d", cfg.Revision())
	}
}

func TestApplyCarrierRange(t *testing.T) {
	base := beacon.Settings{StationName: "B1", Text: "VVV", WPM: 20, FrequencyHz: 10140000, OffsetHz: 100, FSKOffsetHz: 50, CW: true}

	testCases := []struct {
		name string
		line string
	}{
		{"Offset Below Zero Carrier", "offset=-20000000"},
		{"Frequency Above Synthesizer", "freq=450000000"},
		{"Offset Above Synthesizer", "offset=449999999"},
		{"Space Below Synthesizer", "fskoffset=10135000"},
		{"Space Negative", "fskoffset=20000000"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := beacon.NewConfig(base)
			cmd, err := ParseCommand(tc.line)
			if err != nil {
				t.Fatalf("Expected %q to parse, got: %v", tc.line, err)
			}

			err = Apply(cmd, cfg)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError for %q, got %v", tc.line, err)
			}
			if verr.Field != cmd.Field() {
				t.Errorf("Expected field %s, got %s", cmd.Field(), verr.Field)
			}
			if got := cfg.Snapshot(); got != base {
				t.Errorf("Expected settings unchanged, got %+v", got)
			}
			if cfg.Revision() != 0 {
				t.Errorf("Expected no revision, got %d", cfg.Revision())
			}
		})
	}

	t.Run("Within Range Applies", func(t *testing.T) {
		cfg := beacon.NewConfig(base)
		if err := Apply(SetOffset{Hz: -10000000}, cfg); err != nil {
			t.Fatalf("Expected carrier 140000 Hz to be accepted, got: %v", err)
		}
		if cfg.Snapshot().Carrier() != 140000 {
			t.Errorf("Expected carrier 140000, got %d", cfg.Snapshot().Carrier())
		}
	})

	t.Run("Fastest Speed Keeps Positive Dit", func(t *testing.T) {
		cmd, err := ParseCommand(fmt.Sprintf("wpm=%d", morse.MaxWPM))
		if err != nil {
			t.Fatalf("Expected max wpm to parse, got: %v", err)
		}
		if dit := morse.DitDuration(cmd.(SetSpeed).WPM); dit <= 0 {
			t.Errorf("Expected positive dit, got %v", dit)
		}
	})
}

func TestResponse(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		resp := NewSuccessResponse(map[string]interface{}{"applied": "wpm=25"})

		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(resp.String()), &decoded); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if decoded["success"] != true {
			t.Error("Expected success true")
		}
		if _, ok := decoded["error"]; ok {
			t.Error("Expected no error field")
		}
	})

	t.Run("Error", func(t *testing.T) {
		resp := NewErrorResponse("invalid wpm")
		if resp.Success {
			t.Error("Expected success false")
		}
		if !strings.Contains(resp.String(), `"error":"invalid wpm"`) {
			t.Errorf("Unexpected JSON %s", resp.String())
		}
	})
}
