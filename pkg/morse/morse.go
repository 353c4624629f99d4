package morse

import (
	"strings"
	"unicode"
)

// Symbol is a single element of a Morse pattern
type Symbol byte

const (
	Dot   Symbol = '.'
	Dash  Symbol = '-'
	Space Symbol = ' '
)

// Unknown is returned by Decode for patterns that are not in the table
const Unknown = '¿'

// Pattern is a sequence of dots, dashes and explicit spaces for one character
type Pattern string

// Symbols returns the pattern as a slice of symbols
func (p Pattern) Symbols() []Symbol {
	symbols := make([]Symbol, 0, len(p))
	for i := 0; i < len(p); i++ {
		symbols = append(symbols, Symbol(p[i]))
	}
	return symbols
}

// Units returns the keyed length of the pattern in dit units, excluding the
// trailing inter-character gap
func (p Pattern) Units() int {
	units := 0
	for _, s := range p.Symbols() {
		switch s {
		case Dot:
			units += 2
		case Dash:
			units += 4
		case Space:
			units += 4
		}
	}
	return units
}

// table holds every supported character. Prosigns are carried on otherwise
// unused punctuation.
var table = []struct {
	char    rune
	pattern Pattern
}{
	{'a', ".-"}, {'b', "-..."}, {'c', "-.-."}, {'d', "-.."},
	{'e', "."}, {'f', "..-."}, {'g', "--."}, {'h', "...."},
	{'i', ".."}, {'j', ".---"}, {'k', "-.-"}, {'l', ".-.."},
	{'m', "--"}, {'n', "-."}, {'o', "---"}, {'p', ".--."},
	{'q', "--.-"}, {'r', ".-."}, {'s', "..."}, {'t', "-"},
	{'u', "..-"}, {'v', "...-"}, {'w', ".--"}, {'x', "-..-"},
	{'y', "-.--"}, {'z', "--.."},

	{'1', ".----"}, {'2', "..---"}, {'3', "...--"}, {'4', "....-"},
	{'5', "....."}, {'6', "-...."}, {'7', "--..."}, {'8', "---.."},
	{'9', "----."}, {'0', "-----"},

	{'.', ".-.-.-"},
	{',', "--..--"},
	{'?', "..--.."},
	{'=', "-...-"}, // BT separator
	{'-', "-....-"},
	{'/', "-..-."},
	{'@', ".--.-."},

	{'(', "-.--."},   // KN
	{'+', ".-.-."},   // AR
	{'&', ".-..."},   // AS
	{'|', "...-.-"},  // SK
	{'*', "...-."},   // SN
	{'#', "......."}, // error

	{' ', " "}, // word space
}

var (
	encodings = make(map[rune]Pattern, len(table))
	decodings = make(map[Pattern]rune, len(table))
)

func init() {
	for _, entry := range table {
		encodings[entry.char] = entry.pattern
		decodings[entry.pattern] = entry.char
	}
}

// Encode returns the pattern for a character. Lookup is case-insensitive and
// characters without a mapping yield an empty pattern.
func Encode(char rune) Pattern {
	if p, ok := encodings[char]; ok {
		return p
	}
	return encodings[unicode.ToLower(char)]
}

// Decode returns the character for an exact pattern, or Unknown
func Decode(pattern Pattern) rune {
	if char, ok := decodings[pattern]; ok {
		return char
	}
	return Unknown
}

// EncodeString encodes every character of text. Unmapped characters are
// returned as empty patterns so callers keep the one-to-one correspondence.
func EncodeString(text string) []Pattern {
	patterns := make([]Pattern, 0, len(text))
	for _, r := range text {
		patterns = append(patterns, Encode(r))
	}
	return patterns
}

// DecodeString decodes whitespace separated patterns. Consecutive separators
// are ignored.
func DecodeString(patterns string) string {
	var sb strings.Builder
	for _, field := range strings.Fields(patterns) {
		sb.WriteRune(Decode(Pattern(field)))
	}
	return sb.String()
}

// Characters returns every character in the table in table order
func Characters() []rune {
	chars := make([]rune, 0, len(table))
	for _, entry := range table {
		chars = append(chars, entry.char)
	}
	return chars
}

// Supported reports whether a character has a mapping
func Supported(char rune) bool {
	return Encode(char) != ""
}
