// Package config resolves the CLI surface (--listen, --size, --subscribe,
// --custom-css, and the child command) into a plain Config value passed by
// value into the reactor and HTTP server. There is no config file or
// environment-variable layer: every setting comes from the command line,
// per spec.md §6.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eriner/ht/internal/eventbus"
	"github.com/eriner/ht/internal/ptysup"
)

// DefaultCols and DefaultRows are used when --size is not given.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// Config holds every setting resolved from the CLI before the reactor and
// HTTP server are constructed.
type Config struct {
	// Argv is the child command and arguments. Empty means the user's shell.
	Argv []string

	// Winsize is the initial terminal size.
	Winsize ptysup.Winsize

	// Listen is the address the HTTP server binds, e.g. "127.0.0.1:9000".
	// Empty means the HTTP server is not started at all.
	Listen string

	// SubscribeMask is the set of events echoed as JSON lines on stdout.
	// Zero means --subscribe was not given.
	SubscribeMask eventbus.Mask

	// CustomCSSPath is the file served at /custom.css, read fresh on every
	// request. Empty means no override is configured.
	CustomCSSPath string
}

// Default returns a Config with the spec's default terminal size and
// nothing else configured.
func Default() Config {
	return Config{
		Winsize: ptysup.Winsize{Cols: DefaultCols, Rows: DefaultRows},
	}
}

// ParseSize parses a "COLSxROWS" string, e.g. "120x40", into a Winsize.
func ParseSize(s string) (ptysup.Winsize, error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return ptysup.Winsize{}, fmt.Errorf("config: invalid --size %q, want COLSxROWS", s)
	}
	cols, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || cols == 0 {
		return ptysup.Winsize{}, fmt.Errorf("config: invalid --size %q: bad cols", s)
	}
	rows, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || rows == 0 {
		return ptysup.Winsize{}, fmt.Errorf("config: invalid --size %q: bad rows", s)
	}
	return ptysup.Winsize{Cols: uint16(cols), Rows: uint16(rows)}, nil
}

// ParseSubscribe parses a ","-separated --subscribe list into a Mask. This
// is the CLI flag's convention; the /ws/events?sub= query parameter uses
// "+" instead and is parsed separately in internal/httpserver.
func ParseSubscribe(s string) eventbus.Mask {
	if s == "" {
		return 0
	}
	return eventbus.ParseMask(strings.Split(s, ","))
}

// NormalizeListen fills in the ephemeral-port default when --listen is
// given with a host but no port, e.g. plain "--listen" with no value is
// handled by the caller defaulting to this same string before NormalizeListen
// is called. Mirrors the original implementation's default_missing_value.
func NormalizeListen(addr string) string {
	if addr == "" {
		return "127.0.0.1:0"
	}
	if !strings.Contains(addr, ":") {
		return addr + ":0"
	}
	return addr
}
