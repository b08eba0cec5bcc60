package vtscreen

import (
	"strings"
	"testing"
)

func TestSnapshotTextDimensions(t *testing.T) {
	s := New(24, 80)
	text := s.SnapshotText()
	lines := strings.Split(text, "\n")
	if len(lines) != 24 {
		t.Fatalf("got %d lines, want 24", len(lines))
	}
	for i, line := range lines {
		if len(line) != 80 {
			t.Errorf("line %d len = %d, want 80", i, len(line))
		}
	}
}

func TestFeedAndSnapshot(t *testing.T) {
	s := New(24, 80)
	s.Feed([]byte("hi"))
	text := s.SnapshotText()
	lines := strings.Split(text, "\n")
	if !strings.HasPrefix(lines[0], "hi") {
		t.Errorf("first line = %q, want prefix %q", lines[0], "hi")
	}
}

func TestResizeChangesDimensions(t *testing.T) {
	s := New(24, 80)
	s.Resize(100, 30)
	cols, rows := s.Size()
	if cols != 100 || rows != 30 {
		t.Errorf("Size() = (%d,%d), want (100,30)", cols, rows)
	}
	text := s.SnapshotText()
	lines := strings.Split(text, "\n")
	if len(lines) != 30 {
		t.Fatalf("got %d lines, want 30", len(lines))
	}
	for i, line := range lines {
		if len(line) != 100 {
			t.Errorf("line %d len = %d, want 100", i, len(line))
		}
	}
}

func TestResizeNoOpSameDimensions(t *testing.T) {
	s := New(24, 80)
	s.Resize(80, 24)
	cols, rows := s.Size()
	if cols != 80 || rows != 24 {
		t.Errorf("Size() = (%d,%d), want (80,24)", cols, rows)
	}
}

func TestSnapshotHTMLWraps(t *testing.T) {
	s := New(2, 10)
	s.Feed([]byte("ab"))
	html := s.SnapshotHTML()
	if !strings.Contains(html, "<pre") || !strings.Contains(html, "</pre>") {
		t.Errorf("SnapshotHTML() = %q, missing <pre>/</pre>", html)
	}
	if !strings.Contains(html, "ab") {
		t.Errorf("SnapshotHTML() = %q, missing fed content", html)
	}
}
