// Package subscriber runs one goroutine per connected WebSocket client,
// draining a bus subscription and writing it out either as JSON text
// messages or as ALiS binary frames, depending on which endpoint the
// client connected to.
package subscriber

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eriner/ht/internal/alis"
	"github.com/eriner/ht/internal/eventbus"
)

const writeTimeout = 5 * time.Second

// RunJSON drains sub, writing each matching event to conn as one JSON text
// message per spec.md §4.7. It returns once the subscription's channel is
// closed (bus shutdown or subscriber lag) or a write fails. Before
// returning it always sends a close frame rather than a bare TCP close.
func RunJSON(conn *websocket.Conn, sub *eventbus.Subscription, id string, logger *slog.Logger) {
	defer conn.Close()
	defer sendClose(conn, logger, id)

	for evt := range sub.Events() {
		line, err := eventbus.EncodeJSON(evt)
		if err != nil {
			logger.Warn("subscriber: failed to encode event", "id", id, "error", err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			logger.Debug("subscriber: json write failed, disconnecting", "id", id, "error", err)
			return
		}
	}
}

// RunALiS drains sub, translating bus events into ALiS binary frames. The
// subscription's synthesized Init event (delivered first, per
// eventbus.Bus.Subscribe) is converted into the ALiS 'I' frame, since
// alis.Session doesn't encode Init/Snapshot events itself. Idle periods
// send periodic 'K' keepalive frames.
func RunALiS(conn *websocket.Conn, sub *eventbus.Subscription, id string, logger *slog.Logger) {
	defer conn.Close()
	defer sendClose(conn, logger, id)

	session := alis.NewSession()
	keepalive := time.NewTicker(alis.KeepaliveInterval)
	defer keepalive.Stop()

	events := sub.Events()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			var frame []byte
			if evt.Kind == eventbus.KindInit {
				frame = session.InitFrame(evt.Cols, evt.Rows)
			} else {
				f, ok := session.EncodeEvent(evt)
				if !ok {
					continue
				}
				frame = f
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				logger.Debug("subscriber: alis write failed, disconnecting", "id", id, "error", err)
				return
			}
			keepalive.Reset(alis.KeepaliveInterval)

		case <-keepalive.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, session.KeepaliveFrame()); err != nil {
				logger.Debug("subscriber: alis keepalive failed, disconnecting", "id", id, "error", err)
				return
			}
		}
	}
}

func sendClose(conn *websocket.Conn, logger *slog.Logger, id string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "ended")
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		logger.Debug("subscriber: close frame failed", "id", id, "error", err)
	}
}
