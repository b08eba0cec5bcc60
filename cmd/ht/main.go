// Command ht is a headless terminal: it allocates a pseudoterminal, runs a
// child command attached to it, and exposes the resulting terminal session
// over stdin/stdout, HTTP, and WebSocket.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eriner/ht/internal/commands"
	"github.com/eriner/ht/internal/config"
	"github.com/eriner/ht/internal/httpserver"
	"github.com/eriner/ht/internal/reactor"
)

// startupError wraps any error that should exit with code 1 (startup
// failure) rather than code 2 (CLI usage error), so main can tell them
// apart after cobra returns.
type startupError struct{ err error }

func (e *startupError) Error() string { return e.err.Error() }
func (e *startupError) Unwrap() error { return e.err }

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	rootCmd := newRootCmd(logger)
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var se *startupError
		if errors.As(err, &se) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var listen, size, subscribe, customCSS string

	cmd := &cobra.Command{
		Use:   "ht [flags] [--] [command [args...]]",
		Short: "Run a command under a headless terminal",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), logger, args, listen, cmd.Flags().Changed("listen"), size, subscribe, customCSS)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "bind an HTTP server at HOST:PORT (port omitted binds an ephemeral port)")
	cmd.Flags().Lookup("listen").NoOptDefVal = "127.0.0.1"
	cmd.Flags().StringVar(&size, "size", "", "initial terminal size as COLSxROWS (default 80x24)")
	cmd.Flags().StringVar(&subscribe, "subscribe", "", "\",\"-separated event kinds to echo as JSON lines on stdout")
	cmd.Flags().StringVar(&customCSS, "custom-css", "", "path to a CSS file served at /custom.css")

	return cmd
}

func run(ctx context.Context, logger *slog.Logger, argv []string, listen string, listenFlagSet bool, size, subscribe, customCSS string) error {
	cfg := config.Default()
	cfg.Argv = argv
	cfg.CustomCSSPath = customCSS
	cfg.SubscribeMask = config.ParseSubscribe(subscribe)

	if size != "" {
		ws, err := config.ParseSize(size)
		if err != nil {
			return &startupError{err}
		}
		cfg.Winsize = ws
	}

	cfg.Listen = listen

	r, err := reactor.New(reactor.Config{
		Argv:       cfg.Argv,
		Winsize:    cfg.Winsize,
		StdoutMask: cfg.SubscribeMask,
		Stdout: func(line []byte) {
			fmt.Println(string(line))
		},
		Logger: logger,
	})
	if err != nil {
		return &startupError{err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.Run(runCtx)

	if listenFlagSet {
		if err := startHTTPServer(r, config.NormalizeListen(cfg.Listen), cfg.CustomCSSPath, logger); err != nil {
			return &startupError{err}
		}
	}

	go readStdinCommands(r, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		r.Shutdown()
	case <-r.Done():
	}

	<-r.Done()
	return nil
}

func startHTTPServer(r *reactor.Reactor, addr, customCSS string, logger *slog.Logger) error {
	srv, err := httpserver.New(r, customCSS, logger)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	logger.Info("http server listening", "addr", ln.Addr().String())
	fmt.Fprintf(os.Stderr, "live preview available at http://%s\n", ln.Addr().String())

	go func() {
		if err := http.Serve(ln, srv.Handler()); err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// readStdinCommands reads the newline-delimited JSON control protocol from
// stdin until EOF, submitting each parsed command to the reactor. Blank
// lines are skipped; malformed lines are logged and skipped without
// terminating the process. EOF is treated as an implicit close.
func readStdinCommands(r *reactor.Reactor, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		cmd, err := commands.Parse(line)
		if err != nil {
			logger.Warn("stdin: malformed command, skipping", "error", err)
			continue
		}
		r.SubmitCommand(cmd)
	}

	r.SubmitCommand(commands.Command{Type: commands.TypeClose})
}
