package normalize

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/strrl/ragchat/internal/system"
	"github.com/strrl/ragchat/pkg/models"
)

// markdown mirrors the renderer settings the web client used: hard breaks,
// GFM, raw HTML passed through, no smart punctuation, HTML (not XHTML) output.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
		html.WithUnsafe(),
	),
)

// Render normalizes text and converts it to HTML. On conversion failure it
// logs and falls back to the raw text with explicit line breaks.
func Render(text string) string {
	var buf bytes.Buffer
	if err := convert(Normalize(text), &buf); err != nil {
		system.Logger.Warn("markdown render failed", "err", err, "input", truncate(text, 100))
		return Breaks(text)
	}
	return buf.String()
}

// convert shields callers from panics inside the Markdown engine.
func convert(src string, buf *bytes.Buffer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("markdown engine panic: %v", r)
		}
	}()
	return markdown.Convert([]byte(src), buf)
}

// Breaks replaces every newline with an explicit <br />.
func Breaks(text string) string {
	return strings.ReplaceAll(text, "\n", "<br />")
}

// RenderMessage picks the Markdown or plain path based on the message flag.
func RenderMessage(msg models.Message) string {
	if msg.IsMarkdown {
		return Render(msg.Content)
	}
	return Breaks(msg.Content)
}

// Terminal renders normalized Markdown for a terminal of a given width.
type Terminal struct {
	width    int
	renderer *glamour.TermRenderer
}

// NewTerminal builds a glamour renderer wrapping at width columns.
func NewTerminal(width int) (*Terminal, error) {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &Terminal{width: width, renderer: r}, nil
}

// Width returns the wrap width the renderer was built for.
func (t *Terminal) Width() int { return t.width }

// Render normalizes and renders text; failures return the normalized text.
func (t *Terminal) Render(text string) string {
	normalized := Normalize(text)
	if t == nil || t.renderer == nil {
		return normalized
	}
	out, err := t.renderer.Render(normalized)
	if err != nil {
		system.Logger.Warn("terminal markdown render failed", "err", err)
		return normalized
	}
	return strings.TrimRight(out, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
