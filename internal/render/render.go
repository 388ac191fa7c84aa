// Package render prints session results to a terminal. Markdown is rendered
// with glamour when the output is a TTY and written as-is otherwise.
package render

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/user/contentcrew/internal/types"
)

// Renderer writes outcomes to one output stream.
type Renderer struct {
	w   io.Writer
	out *termenv.Output
	md  *glamour.TermRenderer
}

// Option configures a Renderer.
type Option func(*config)

type config struct {
	tty   *bool
	style string
	width int
}

// WithTTY overrides terminal detection.
func WithTTY(tty bool) Option {
	return func(c *config) { c.tty = &tty }
}

// WithStyle selects a glamour style instead of detecting the background.
func WithStyle(style string) Option {
	return func(c *config) { c.style = style }
}

// WithWidth sets the word wrap width for rendered markdown.
func WithWidth(width int) Option {
	return func(c *config) { c.width = width }
}

// New creates a Renderer for w.
func New(w io.Writer, opts ...Option) *Renderer {
	cfg := config{width: 100}
	for _, opt := range opts {
		opt(&cfg)
	}
	tty := isTerminal(w)
	if cfg.tty != nil {
		tty = *cfg.tty
	}

	r := &Renderer{w: w}
	if !tty {
		r.out = termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))
		return r
	}
	r.out = termenv.NewOutput(w)

	styleOpt := glamour.WithAutoStyle()
	if cfg.style != "" {
		styleOpt = glamour.WithStandardStyle(cfg.style)
	}
	md, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(cfg.width))
	if err == nil {
		r.md = md
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Markdown writes text, rendered when the output is a terminal.
func (r *Renderer) Markdown(text string) error {
	if r.md != nil {
		rendered, err := r.md.Render(text)
		if err == nil {
			_, err = io.WriteString(r.w, rendered)
			return err
		}
	}
	_, err := fmt.Fprintln(r.w, text)
	return err
}

// Outcome prints the session output followed by its status notes.
func (r *Renderer) Outcome(o *types.Outcome) error {
	if o.Failure != "" && o.Failure != types.FailurePersistence {
		r.Error(o.Output)
		return nil
	}
	if err := r.Markdown(o.Output); err != nil {
		return err
	}
	if o.Truncated {
		r.Warn(fmt.Sprintf("Stopped at the routing limit; this is the latest draft (session %s).", o.SessionID))
	}
	if o.Failure == types.FailurePersistence {
		r.Warn("The content could not be saved to disk.")
	}
	if o.OutputPath != "" {
		r.Note("Saved to " + o.OutputPath)
	}
	return nil
}

// Note prints a dimmed line.
func (r *Renderer) Note(msg string) {
	fmt.Fprintln(r.w, r.out.String(msg).Faint())
}

// Warn prints a yellow line.
func (r *Renderer) Warn(msg string) {
	fmt.Fprintln(r.w, r.out.String("warning: "+msg).Foreground(r.out.Color("3")))
}

// Error prints a red line.
func (r *Renderer) Error(msg string) {
	fmt.Fprintln(r.w, r.out.String(msg).Foreground(r.out.Color("1")))
}
