// Package keymap translates symbolic key names ("Enter", "C-c", "F1", ...)
// into the byte sequences a terminal application expects to receive on its
// input stream.
package keymap

import (
	"fmt"
	"strings"
)

// ErrUnknownKey is returned by Translate for an empty name, or for a
// modifier-prefixed name whose remainder the modifier does not accept.
type ErrUnknownKey struct {
	Name string
}

func (e *ErrUnknownKey) Error() string {
	return fmt.Sprintf("unknown key: %q", e.Name)
}

var basicKeys = map[string][]byte{
	"Enter":     {'\r'},
	"Space":     {' '},
	"Tab":       {'\t'},
	"Escape":    {0x1b},
	"Backspace": {0x7f},
}

// arrowKeys maps the bare arrow name to its CSI final byte.
var arrowKeys = map[string]byte{
	"Up":    'A',
	"Down":  'B',
	"Right": 'C',
	"Left":  'D',
}

// functionKeys maps F1-F12 to their standard xterm sequences.
var functionKeys = map[string][]byte{
	"F1":  []byte("\x1bOP"),
	"F2":  []byte("\x1bOQ"),
	"F3":  []byte("\x1bOR"),
	"F4":  []byte("\x1bOS"),
	"F5":  []byte("\x1b[15~"),
	"F6":  []byte("\x1b[17~"),
	"F7":  []byte("\x1b[18~"),
	"F8":  []byte("\x1b[19~"),
	"F9":  []byte("\x1b[20~"),
	"F10": []byte("\x1b[21~"),
	"F11": []byte("\x1b[23~"),
	"F12": []byte("\x1b[24~"),
}

// Translate converts a symbolic key name to its byte sequence. Plain
// printable text (anything not recognized as a modifier-prefixed or named
// key) is returned verbatim as UTF-8.
func Translate(name string) ([]byte, error) {
	if name == "" {
		return nil, &ErrUnknownKey{Name: name}
	}

	// Modifier prefixes: C- (Ctrl), S- (Shift), A- (Alt/Meta). Only A-
	// recurses on the remainder; C- accepts an arrow name or a single
	// character, and S- accepts an arrow name, so C-/S- do not combine with
	// further modifiers.
	switch {
	case strings.HasPrefix(name, "C-"):
		return translateCtrl(name[2:])
	case strings.HasPrefix(name, "S-"):
		return translateShift(name[2:])
	case strings.HasPrefix(name, "A-"):
		rest, err := Translate(name[2:])
		if err != nil {
			return nil, err
		}
		return append([]byte{0x1b}, rest...), nil
	}

	if seq, ok := basicKeys[name]; ok {
		return seq, nil
	}
	if final, ok := arrowKeys[name]; ok {
		return []byte{0x1b, '[', final}, nil
	}
	if seq, ok := functionKeys[name]; ok {
		return seq, nil
	}

	// Anything else is plain printable text: passthrough as UTF-8,
	// regardless of length.
	return []byte(name), nil
}

// translateCtrl implements C-<letter> -> single control byte, and
// C-Up/C-Down/... -> CSI "1;5" modified arrow sequences.
func translateCtrl(rest string) ([]byte, error) {
	if final, ok := arrowKeys[rest]; ok {
		return []byte{0x1b, '[', '1', ';', '5', final}, nil
	}
	if len(rest) == 1 {
		c := rest[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []byte{c - 'a' + 1}, nil
		case c >= 'A' && c <= 'Z':
			return []byte{c - 'A' + 1}, nil
		case c == ' ':
			return []byte{0x00}, nil
		case c == '[':
			return []byte{0x1b}, nil
		case c == ']':
			return []byte{0x1d}, nil
		case c == '\\':
			return []byte{0x1c}, nil
		case c == '^':
			return []byte{0x1e}, nil
		case c == '_':
			return []byte{0x1f}, nil
		}
	}
	return nil, &ErrUnknownKey{Name: "C-" + rest}
}

// translateShift implements S-<arrow> -> CSI "1;2" modified arrow sequences.
// S- on anything else is not in the core table.
func translateShift(rest string) ([]byte, error) {
	if final, ok := arrowKeys[rest]; ok {
		return []byte{0x1b, '[', '1', ';', '2', final}, nil
	}
	return nil, &ErrUnknownKey{Name: "S-" + rest}
}
