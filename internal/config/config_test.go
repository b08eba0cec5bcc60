package config

import (
	"testing"

	"github.com/eriner/ht/internal/eventbus"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Winsize.Cols != DefaultCols || cfg.Winsize.Rows != DefaultRows {
		t.Errorf("Default().Winsize = %+v, want %dx%d", cfg.Winsize, DefaultCols, DefaultRows)
	}
	if cfg.Listen != "" || cfg.CustomCSSPath != "" || cfg.SubscribeMask != 0 {
		t.Errorf("Default() set unexpected fields: %+v", cfg)
	}
}

func TestParseSize(t *testing.T) {
	ws, err := ParseSize("120x40")
	if err != nil {
		t.Fatalf("ParseSize: %v", err)
	}
	if ws.Cols != 120 || ws.Rows != 40 {
		t.Errorf("ParseSize(120x40) = %+v", ws)
	}
}

func TestParseSizeRejectsMalformed(t *testing.T) {
	cases := []string{"", "80", "80x", "x24", "0x24", "80x0", "abcxdef"}
	for _, c := range cases {
		if _, err := ParseSize(c); err == nil {
			t.Errorf("ParseSize(%q): want error, got nil", c)
		}
	}
}

func TestParseSubscribe(t *testing.T) {
	mask := ParseSubscribe("output,resize")
	if mask&eventbus.MaskOutput == 0 || mask&eventbus.MaskResize == 0 {
		t.Errorf("ParseSubscribe(output,resize) = %v, missing expected bits", mask)
	}
}

func TestParseSubscribeEmpty(t *testing.T) {
	if mask := ParseSubscribe(""); mask != 0 {
		t.Errorf("ParseSubscribe(\"\") = %v, want 0", mask)
	}
}

func TestNormalizeListen(t *testing.T) {
	cases := map[string]string{
		"":                "127.0.0.1:0",
		"127.0.0.1":       "127.0.0.1:0",
		"127.0.0.1:9000":  "127.0.0.1:9000",
		"0.0.0.0:8080":    "0.0.0.0:8080",
	}
	for in, want := range cases {
		if got := NormalizeListen(in); got != want {
			t.Errorf("NormalizeListen(%q) = %q, want %q", in, got, want)
		}
	}
}
