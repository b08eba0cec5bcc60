// Package httpserver exposes the live terminal session over HTTP: the
// embedded static web player, and the /ws/events and /ws/alis WebSocket
// endpoints, per spec.md §4.7.
package httpserver

import (
	"embed"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eriner/ht/internal/eventbus"
	"github.com/eriner/ht/internal/reactor"
	"github.com/eriner/ht/internal/subscriber"
)

//go:embed assets
var embeddedAssets embed.FS

// eventsSubCapacity and alisSubCapacity are the bounded per-subscriber
// queue depths from spec.md §4.4: 64 for JSON clients, 256 for ALiS
// clients, reflecting the larger per-event payload JSON clients receive
// relative to ALiS's compact framing.
const (
	eventsSubCapacity = 64
	alisSubCapacity   = 256
)

// Server serves the static player and the two WebSocket endpoints against
// a single reactor instance.
type Server struct {
	reactor       *reactor.Reactor
	customCSSPath string
	assets        fs.FS
	upgrader      websocket.Upgrader
	logger        *slog.Logger
}

// New constructs a Server. customCSSPath may be empty, meaning no custom
// CSS override is configured.
func New(r *reactor.Reactor, customCSSPath string, logger *slog.Logger) (*Server, error) {
	assets, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		reactor:       r,
		customCSSPath: customCSSPath,
		assets:        assets,
		upgrader:      websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:        logger,
	}, nil
}

// Handler returns the root http.Handler, suitable for http.Serve.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/events", s.handleEvents)
	mux.HandleFunc("/ws/alis", s.handleALiS)
	mux.HandleFunc("/", s.handleStatic)
	return mux
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Query decoding turns a literal "+" into a space, so both separate tokens.
	mask := eventbus.ParseMask(strings.FieldsFunc(r.URL.Query().Get("sub"), func(c rune) bool {
		return c == '+' || c == ' '
	}))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("events: upgrade failed", "error", err)
		return
	}

	sub := s.reactor.Subscribe(mask, eventsSubCapacity)
	if sub == nil {
		conn.Close()
		return
	}

	id := uuid.New().String()
	s.logger.Info("events subscriber connected", "id", id, "mask", mask)
	subscriber.RunJSON(conn, sub, id, s.logger)
	s.logger.Info("events subscriber disconnected", "id", id)
}

func (s *Server) handleALiS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("alis: upgrade failed", "error", err)
		return
	}

	mask := eventbus.MaskInit | eventbus.MaskOutput | eventbus.MaskResize
	sub := s.reactor.Subscribe(mask, alisSubCapacity)
	if sub == nil {
		conn.Close()
		return
	}

	id := uuid.New().String()
	s.logger.Info("alis subscriber connected", "id", id)
	subscriber.RunALiS(conn, sub, id, s.logger)
	s.logger.Info("alis subscriber disconnected", "id", id)
}

// handleStatic serves the embedded player assets, with custom.css read
// fresh from disk on every request rather than cached at startup, so
// editing the file takes effect without a restart.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(r.URL.Path, "/")
	if p == "" {
		p = "index.html"
	}

	if p == "custom.css" {
		s.serveCustomCSS(w)
		return
	}

	data, err := fs.ReadFile(s.assets, p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType(p))
	w.Write(data)
}

func (s *Server) serveCustomCSS(w http.ResponseWriter) {
	if s.customCSSPath == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	data, err := os.ReadFile(s.customCSSPath)
	if err != nil {
		s.logger.Warn("failed to read custom css file", "path", s.customCSSPath, "error", err)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/css")
	w.Write(data)
}

func contentType(p string) string {
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
