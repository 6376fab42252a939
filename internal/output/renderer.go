package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"

	"github.com/atikulmunna/flowscope/internal/model"
)

// Renderer writes normalized messages and flow groups to an output stream.
type Renderer interface {
	RenderMessage(msg model.ParsedMessage) error
	RenderGroups(groups []model.FlowGroup) error
}

// New returns the renderer for format, "text" or "json".
func New(format string, w io.Writer) (Renderer, error) {
	switch format {
	case "", "text":
		return NewTextRenderer(w), nil
	case "json":
		return NewJSONRenderer(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text or json)", format)
	}
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

const previewWidth = 160

var (
	styleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	styleDebug = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true)
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))            // yellow
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true) // red bold
	styleFatal = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("196")).
			Bold(true) // white on red
	styleSource  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true) // cyan
	styleFlow    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleCommand = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
)

// TextRenderer prints messages to the terminal with severity-based colors.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) RenderMessage(msg model.ParsedMessage) error {
	_, err := fmt.Fprintln(r.w, r.line(msg, true))
	return err
}

func (r *TextRenderer) RenderGroups(groups []model.FlowGroup) error {
	for _, g := range groups {
		header := fmt.Sprintf("%s  %d message(s)  %s .. %s",
			styleFlow.Render(g.FlowID),
			len(g.Messages),
			g.First.Format("2006-01-02 15:04:05"),
			g.Last.Format("15:04:05"))
		if _, err := fmt.Fprintln(r.w, header); err != nil {
			return err
		}
		for _, m := range g.Messages {
			if _, err := fmt.Fprintln(r.w, "  "+r.line(m, false)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *TextRenderer) line(m model.ParsedMessage, withFlow bool) string {
	parts := []string{m.Timestamp.Format("15:04:05"), styleLevelTag(m.Level)}
	if withFlow {
		parts = append(parts, styleFlow.Render(m.FlowID))
	}
	if src := source(m); src != "" {
		parts = append(parts, styleSource.Render(src))
	}
	if m.CommandName != "" {
		parts = append(parts, styleCommand.Render(m.CommandName)+verdict(m.Success))
	}
	parts = append(parts, preview(m))
	return strings.Join(parts, " ")
}

func source(m model.ParsedMessage) string {
	switch {
	case m.ContainerName != "":
		return m.ContainerName
	case m.SourceService != "":
		return m.SourceService
	default:
		return m.Topic
	}
}

func verdict(success *bool) string {
	switch {
	case success == nil:
		return ""
	case *success:
		return styleOK.Render(" ok")
	default:
		return styleFailed.Render(" failed")
	}
}

// preview is the structured message when there is one, otherwise the first
// line of the value, cut to previewWidth runes.
func preview(m model.ParsedMessage) string {
	text := m.StructuredMessage
	if text == "" {
		text = m.Value
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if runes := []rune(text); len(runes) > previewWidth {
		text = string(runes[:previewWidth]) + "..."
	}
	if m.ErrorMessage != "" {
		text += " " + styleFailed.Render("error: "+m.ErrorMessage)
	}
	return text
}

func styleLevelTag(level string) string {
	level = strings.ToUpper(level)
	padded := fmt.Sprintf("%-5s", level)
	switch level {
	case "DEBUG", "TRACE":
		return styleDebug.Render(padded)
	case "WARN", "WARNING":
		return styleWarn.Render(padded)
	case "ERROR":
		return styleError.Render(padded)
	case "FATAL", "CRITICAL":
		return styleFatal.Render(padded)
	default:
		return styleInfo.Render(padded)
	}
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each message or group as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONRenderer{enc: enc}
}

func (r *JSONRenderer) RenderMessage(msg model.ParsedMessage) error {
	return r.enc.Encode(msg)
}

func (r *JSONRenderer) RenderGroups(groups []model.FlowGroup) error {
	for _, g := range groups {
		if err := r.enc.Encode(g); err != nil {
			return err
		}
	}
	return nil
}
