package subscriber

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eriner/ht/internal/eventbus"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, upgrader websocket.Upgrader, run func(*websocket.Conn, *eventbus.Subscription)) (*httptest.Server, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(80, 24)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		sub := bus.Subscribe(eventbus.MaskInit|eventbus.MaskOutput|eventbus.MaskResize, 64)
		run(conn, sub)
	}))
	t.Cleanup(srv.Close)
	return srv, bus
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRunJSONStreamsOutputEvent(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv, bus := startServer(t, upgrader, func(conn *websocket.Conn, sub *eventbus.Subscription) {
		go RunJSON(conn, sub, "test", discardLogger())
	})

	conn := dial(t, srv)
	conn.ReadMessage() // init

	bus.Publish(eventbus.Event{Kind: eventbus.KindOutput, Data: []byte("hi")})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !contains(data, `"output"`) || !contains(data, `"hi"`) {
		t.Errorf("message = %s, missing expected fields", data)
	}
}

func TestRunJSONSendsCloseOnBusShutdown(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv, bus := startServer(t, upgrader, func(conn *websocket.Conn, sub *eventbus.Subscription) {
		go RunJSON(conn, sub, "test", discardLogger())
	})

	conn := dial(t, srv)
	conn.ReadMessage() // init

	bus.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if _, ok := err.(*websocket.CloseError); !ok {
		t.Errorf("expected a close error after bus shutdown, got %v", err)
	}
}

func TestRunALiSSendsInitThenOutputFrame(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv, bus := startServer(t, upgrader, func(conn *websocket.Conn, sub *eventbus.Subscription) {
		go RunALiS(conn, sub, "test", discardLogger())
	})

	conn := dial(t, srv)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, initFrame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage (init): %v", err)
	}
	if !contains(initFrame, "ALiS\x01") {
		t.Errorf("init frame missing ALiS magic: %v", initFrame)
	}

	bus.Publish(eventbus.Event{Kind: eventbus.KindOutput, Data: []byte("yo")})

	_, outFrame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage (output): %v", err)
	}
	if outFrame[0] != 'O' {
		t.Errorf("expected output frame tag 'O', got %q", outFrame[0])
	}
}

func contains(haystack []byte, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack []byte, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) == needle {
			return i
		}
	}
	return -1
}
