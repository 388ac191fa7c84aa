package agent

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ctxengine "github.com/user/contentcrew/internal/context"
	"github.com/user/contentcrew/internal/retry"
	"github.com/user/contentcrew/internal/tools"
	"github.com/user/contentcrew/internal/types"
	"github.com/user/contentcrew/pkg/llm"
)

//go:embed styles.yaml
var stylesYAML []byte

// Style holds the constraints for one content format.
type Style struct {
	Length    string `yaml:"length"`
	Tone      string `yaml:"tone"`
	Structure string `yaml:"structure"`
	MaxTokens int    `yaml:"max_tokens"`
}

// LoadStyles parses a YAML style sheet keyed by format name.
func LoadStyles(data []byte) (map[types.Format]Style, error) {
	var raw map[string]Style
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse styles: %w", err)
	}
	styles := make(map[types.Format]Style, len(raw))
	for name, s := range raw {
		f, ok := types.ParseFormat(name)
		if !ok {
			return nil, fmt.Errorf("unknown format %q in styles", name)
		}
		styles[f] = s
	}
	for _, f := range []types.Format{types.FormatPost, types.FormatBlog} {
		if _, ok := styles[f]; !ok {
			return nil, fmt.Errorf("styles missing format %q", f)
		}
	}
	return styles, nil
}

// DefaultStyles returns the built-in style sheet.
func DefaultStyles() map[types.Format]Style {
	styles, err := LoadStyles(stylesYAML)
	if err != nil {
		panic(err)
	}
	return styles
}

// CopywriterConfig tunes the Copywriter. Zero values get defaults.
type CopywriterConfig struct {
	CallTimeout time.Duration
	Retry       *retry.Policy
	Styles      map[types.Format]Style
	Now         func() time.Time
}

// Copywriter turns a research report into a post or blog article.
type Copywriter struct {
	provider llm.Provider
	writer   tools.Writer
	cfg      CopywriterConfig
}

// NewCopywriter creates a Copywriter. A nil writer skips persistence.
func NewCopywriter(provider llm.Provider, writer tools.Writer, cfg CopywriterConfig) *Copywriter {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 120 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.Once(time.Second)
	}
	if cfg.Styles == nil {
		cfg.Styles = DefaultStyles()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Copywriter{provider: provider, writer: writer, cfg: cfg}
}

// Write generates content in format from report. The generation call is
// retried once. When the content cannot be persisted it is still returned,
// with PersistError set, alongside a persistence failure.
func (c *Copywriter) Write(ctx context.Context, report *types.ResearchReport, format types.Format, instructions string) (*types.GeneratedContent, error) {
	if report.Empty() {
		return nil, types.Failf(types.FailureGeneration, "write", "no research report to write from")
	}
	style, ok := c.cfg.Styles[format]
	if !ok {
		format = types.FormatPost
		style = c.cfg.Styles[format]
	}
	start := time.Now()

	system, err := ctxengine.CopywriterSystem(ctxengine.CopywriterData{
		Format:       formatLabel(format),
		Length:       style.Length,
		Tone:         style.Tone,
		Structure:    style.Structure,
		Instructions: instructions,
	})
	if err != nil {
		return nil, types.Fail(types.FailureGeneration, "write", err)
	}
	req := &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: RenderReport(report)},
		},
		MaxTokens: style.MaxTokens,
	}

	var text string
	attempt := 0
	err = c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
		resp, err := c.provider.Complete(callCtx, req)
		if err != nil {
			slog.Warn("copywriter generation failed", "attempt", attempt, "error", err)
			return err
		}
		text = strings.TrimSpace(resp.Content)
		if text == "" {
			slog.Warn("copywriter returned empty text", "attempt", attempt)
			return fmt.Errorf("empty generation")
		}
		return nil
	})
	if err != nil {
		return nil, types.Fail(types.FailureGeneration, "generate content", err)
	}

	content := &types.GeneratedContent{
		Format: format,
		Title:  titleOf(text, report.Topic),
		Text:   text,
	}
	slog.Info("copywriter generated content", "format", format, "chars", len(text), "attempts", attempt, "dur", time.Since(start).Round(time.Millisecond))

	if c.writer == nil {
		return content, nil
	}
	name := FileName(c.cfg.Now(), format, content.Title)
	writeCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	path, err := c.writer.Write(writeCtx, name, text+"\n")
	if err != nil {
		content.PersistError = err.Error()
		return content, types.Fail(types.FailurePersistence, "write content", err)
	}
	content.Path = path
	content.Persisted = true
	return content, nil
}

func formatLabel(f types.Format) string {
	if f == types.FormatBlog {
		return "blog article"
	}
	return "social media post"
}

// RenderReport formats a report as the copywriter's input.
func RenderReport(r *types.ResearchReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research report: %s\n\n%s\n", r.Topic, strings.TrimSpace(r.Summary))
	if len(r.Findings) > 0 {
		sb.WriteString("\n## Key findings\n\n")
		for _, f := range r.Findings {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	if len(r.Sources) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for _, s := range r.Sources {
			if s.Title != "" {
				fmt.Fprintf(&sb, "- %s (%s)\n", s.Title, s.URL)
			} else {
				fmt.Fprintf(&sb, "- %s\n", s.URL)
			}
		}
	}
	return sb.String()
}

// titleOf picks the first heading, else the first line, else fallback.
func titleOf(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
		if len(line) > 80 {
			return fallback
		}
		return line
	}
	return fallback
}

// FileName returns <yyyymmdd-hhmmss>-<format>-<slug>.md.
func FileName(at time.Time, format types.Format, title string) string {
	return fmt.Sprintf("%s-%s-%s.md", at.Format("20060102-150405"), format, Slug(title))
}

// Slug lowercases s and joins its alphanumeric runs with dashes.
func Slug(s string) string {
	const maxLen = 60
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			dash = false
			sb.WriteRune(r)
		default:
			dash = true
		}
		if sb.Len() >= maxLen {
			break
		}
	}
	out := sb.String()
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	out = strings.Trim(out, "-")
	if out == "" {
		return "content"
	}
	return out
}
