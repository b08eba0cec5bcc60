package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eriner/ht/internal/ptysup"
	"github.com/eriner/ht/internal/reactor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, customCSS string) *httptest.Server {
	t.Helper()
	r, err := reactor.New(reactor.Config{
		Argv:    []string{"cat"},
		Winsize: ptysup.Winsize{Cols: 80, Rows: 24},
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)

	s, err := New(r, customCSS, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestStaticIndexServed(t *testing.T) {
	srv := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "<html") {
		t.Errorf("body missing expected html content: %s", body)
	}
}

func TestStaticMissingPathIs404(t *testing.T) {
	srv := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/does-not-exist.xyz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCustomCSSServedFromDiskPerRequest(t *testing.T) {
	dir := t.TempDir()
	cssPath := filepath.Join(dir, "custom.css")
	os.WriteFile(cssPath, []byte("body { color: red; }"), 0o644)

	srv := newTestServer(t, cssPath)

	resp, _ := http.Get(srv.URL + "/custom.css")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "color: red") {
		t.Fatalf("body = %s, want to contain initial css", body)
	}

	os.WriteFile(cssPath, []byte("body { color: blue; }"), 0o644)

	resp2, _ := http.Get(srv.URL + "/custom.css")
	body2, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	if !strings.Contains(string(body2), "color: blue") {
		t.Errorf("body = %s, want updated css without restart", body2)
	}
}

func TestCustomCSSMissingIs404(t *testing.T) {
	srv := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/custom.css")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no custom css configured", resp.StatusCode)
	}
}

func TestWSEventsUpgradeAndInit(t *testing.T) {
	srv := newTestServer(t, "")
	wsURL := "ws" + srv.URL[len("http"):] + "/ws/events?sub=init+output"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), `"init"`) {
		t.Errorf("first message = %s, want an init event", data)
	}
}

func TestWSALiSUpgradeAndInit(t *testing.T) {
	srv := newTestServer(t, "")
	wsURL := "ws" + srv.URL[len("http"):] + "/ws/alis"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.HasPrefix(string(data), "ALiS\x01") {
		t.Errorf("first frame missing ALiS magic: %v", data)
	}
}
