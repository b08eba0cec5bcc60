// Package alis encodes screen state and deltas into the asciinema-style
// live-stream binary framing used by the /ws/alis endpoint.
package alis

import (
	"encoding/binary"
	"encoding/json"
	"strings"
	"time"

	"github.com/eriner/ht/internal/eventbus"
)

// Magic is the version header every ALiS stream opens with, immediately
// followed by the 'I' tag and the initial screen dimensions.
const Magic = "ALiS\x01"

// KeepaliveInterval is how often a 'K' frame is sent while the stream is
// otherwise idle.
const KeepaliveInterval = 15 * time.Second

const (
	tagInit   = 'I'
	tagOutput = 'O'
	tagResize = 'R'
	tagAlive  = 'K'
)

// Session encodes events for one ALiS subscriber, tracking the clock base
// ("time since session start") each O/R frame's timestamp is measured
// against. The encoder carries no state beyond that clock base.
type Session struct {
	start time.Time
}

// NewSession starts an ALiS encoding session with its clock base set to now
// — i.e. the moment the subscriber attached.
func NewSession() *Session {
	return &Session{start: time.Now()}
}

func (s *Session) elapsedMs() uint64 {
	return uint64(time.Since(s.start) / time.Millisecond)
}

// InitFrame builds the magic + 'I' frame sent once, as the very first frame
// of the stream.
func (s *Session) InitFrame(cols, rows int) []byte {
	return encodeInit(cols, rows)
}

// EncodeEvent translates a bus event into its ALiS frame. Snapshot events
// are not forwarded on this stream (ok is false).
func (s *Session) EncodeEvent(evt eventbus.Event) (frame []byte, ok bool) {
	switch evt.Kind {
	case eventbus.KindOutput:
		return encodeOutput(s.elapsedMs(), evt.Data), true
	case eventbus.KindResize:
		return encodeResize(s.elapsedMs(), evt.Cols, evt.Rows), true
	default:
		return nil, false
	}
}

// KeepaliveFrame builds the idle-keepalive frame.
func (s *Session) KeepaliveFrame() []byte {
	return []byte{tagAlive}
}

func encodeInit(cols, rows int) []byte {
	type initPayload struct {
		Cols   int   `json:"cols"`
		Rows   int   `json:"rows"`
		TimeMs int64 `json:"time_ms"`
	}
	body, _ := json.Marshal(initPayload{Cols: cols, Rows: rows, TimeMs: 0})

	out := make([]byte, 0, len(Magic)+1+len(body))
	out = append(out, Magic...)
	out = append(out, tagInit)
	out = append(out, body...)
	return out
}

func encodeOutput(elapsedMs uint64, data []byte) []byte {
	text := strings.ToValidUTF8(string(data), "�")
	return encodeTimedFrame(tagOutput, elapsedMs, []byte(text))
}

func encodeResize(elapsedMs uint64, cols, rows int) []byte {
	type resizePayload struct {
		Cols int `json:"cols"`
		Rows int `json:"rows"`
	}
	body, _ := json.Marshal(resizePayload{Cols: cols, Rows: rows})
	return encodeTimedFrame(tagResize, elapsedMs, body)
}

// encodeTimedFrame lays out tag + little-endian u64 timestamp +
// varint-length + payload, shared by the O and R frame kinds.
func encodeTimedFrame(tag byte, elapsedMs uint64, payload []byte) []byte {
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], elapsedMs)

	lenBuf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(lenBuf, uint64(len(payload)))

	out := make([]byte, 0, 1+8+n+len(payload))
	out = append(out, tag)
	out = append(out, ts[:]...)
	out = append(out, lenBuf[:n]...)
	out = append(out, payload...)
	return out
}
