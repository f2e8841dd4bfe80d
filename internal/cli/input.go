// Package cli is the interactive front end: it reads queries line by line,
// runs them through a search session and prints grouped results.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/config"
	"github.com/bastiangx/docserve/pkg/session"
	"github.com/bastiangx/docserve/pkg/shards"
	"github.com/charmbracelet/log"
)

// Backend is what the input handler needs from the engine.
type Backend interface {
	NewSession(opts ...session.Option) *session.Session
	Stats() shards.Stats
}

// InputHandler reads queries from stdin and prints results to stdout. Lines
// starting with ':' are commands (":stats", ":quit").
type InputHandler struct {
	backend  Backend
	in       io.Reader
	out      io.Writer
	renderer *Renderer
	limit    int
	noFilter bool
}

// Option configures an InputHandler.
type Option func(*InputHandler)

// WithIO replaces stdin/stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(h *InputHandler) {
		h.in = in
		h.out = out
	}
}

// WithLimit overrides the configured result limit.
func WithLimit(n int) Option {
	return func(h *InputHandler) {
		if n > 0 {
			h.limit = n
		}
	}
}

// WithNoFilter disables input filtering.
func WithNoFilter(noFilter bool) Option {
	return func(h *InputHandler) { h.noFilter = noFilter }
}

// NewInputHandler creates a handler using the cli config section.
func NewInputHandler(backend Backend, cfg config.CliConfig, opts ...Option) *InputHandler {
	h := &InputHandler{
		backend: backend,
		in:      os.Stdin,
		out:     os.Stdout,
		limit:   cfg.DefaultLimit,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.renderer = NewRenderer(h.out, cfg.ShowSignature)
	return h
}

// Start runs the prompt loop until EOF, ":quit" or ctx is done.
func (h *InputHandler) Start(ctx context.Context) error {
	// each line is a complete query, nothing to debounce
	s := h.backend.NewSession(session.WithLimit(h.limit), session.WithDebounce(0))
	defer s.Close()

	fmt.Fprintln(h.out, headerStyle.Render("DocServe CLI"))
	fmt.Fprintln(h.out, headerStyle.Render("type a symbol prefix and press Enter (:stats, :quit, Ctrl+C to exit):"))

	scanner := bufio.NewScanner(h.in)
	for ctx.Err() == nil {
		fmt.Fprint(h.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ":q", ":quit":
			return nil
		case ":stats":
			h.renderer.Stats(h.backend.Stats())
			continue
		}
		h.handleInput(ctx, s, line)
	}
	return ctx.Err()
}

func (h *InputHandler) handleInput(ctx context.Context, s *session.Session, query string) {
	if !h.noFilter && !utils.IsValidInput(query) {
		fmt.Fprintln(h.out, headerStyle.Render(fmt.Sprintf("No symbols found for '%s' (filtered out)", query)))
		return
	}

	log.Debug("Processing query", "query", query, "limit", h.limit)
	update, err := s.Await(ctx, s.Submit(query))
	switch {
	case errors.Is(err, session.ErrCancelled), errors.Is(err, context.Canceled):
		return
	case err != nil:
		h.renderer.Error(query, err)
		return
	}
	log.Debugf("Took [ %v ] for query '%s'", update.Elapsed, query)
	h.renderer.Results(query, update.Results, update.Elapsed)
}
