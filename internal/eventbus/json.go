package eventbus

import (
	"encoding/json"
	"strings"
)

type wireCursor struct {
	Col     int  `json:"col"`
	Row     int  `json:"row"`
	Visible bool `json:"visible"`
}

type wireEvent struct {
	Type   string      `json:"type"`
	Seq    uint64      `json:"seq"`
	Cols   int         `json:"cols,omitempty"`
	Rows   int         `json:"rows,omitempty"`
	Data   string      `json:"data,omitempty"`
	Text   string      `json:"text,omitempty"`
	Cursor *wireCursor `json:"cursor,omitempty"`
}

// Mask returns the single mask bit the event's own kind corresponds to, so
// callers deciding whether to forward an event to a stdout --subscribe
// stream (or any other ad hoc consumer outside the bus) can test it against
// their own mask without reaching into the bus.
func (e Event) Mask() Mask {
	return e.kindMask()
}

// EncodeJSON renders an event as the one-JSON-object-per-line wire format
// used by /ws/events and by --subscribe's stdout stream. Output.Data is
// rendered as a UTF-8 string with invalid bytes lossy-replaced by U+FFFD.
func EncodeJSON(evt Event) ([]byte, error) {
	w := wireEvent{Seq: evt.Seq}
	switch evt.Kind {
	case KindInit:
		w.Type = "init"
		w.Cols, w.Rows = evt.Cols, evt.Rows
	case KindOutput:
		w.Type = "output"
		w.Data = strings.ToValidUTF8(string(evt.Data), "�")
	case KindResize:
		w.Type = "resize"
		w.Cols, w.Rows = evt.Cols, evt.Rows
	case KindSnapshot:
		w.Type = "snapshot"
		w.Text = evt.Text
		w.Cols, w.Rows = evt.Cols, evt.Rows
		w.Cursor = &wireCursor{Col: evt.Cursor.Col, Row: evt.Cursor.Row, Visible: evt.Cursor.Visible}
	}
	return json.Marshal(w)
}
