package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

// Styles used by text mode output.
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Key     lipgloss.Style
}

// NewStyles returns the text mode styles. Without color every style renders plain text.
func NewStyles(color bool) Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return Styles{Title: plain, Success: plain, Warning: plain, Error: plain, Muted: plain, Key: plain}
	}
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Key:     lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")),
	}
}

// TextPrinter writes styled lines for text mode.
type TextPrinter struct {
	w      io.Writer
	styles Styles
}

// NewTextPrinter creates a printer writing to w.
func NewTextPrinter(w io.Writer, color bool) *TextPrinter {
	return &TextPrinter{w: w, styles: NewStyles(color)}
}

func (p *TextPrinter) Title(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.Title.Render(fmt.Sprintf(format, args...)))
}

func (p *TextPrinter) Success(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.Success.Render("✔ "+fmt.Sprintf(format, args...)))
}

func (p *TextPrinter) Warning(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.Warning.Render("! "+fmt.Sprintf(format, args...)))
}

func (p *TextPrinter) Failure(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.Error.Render("✘ "+fmt.Sprintf(format, args...)))
}

// Item prints an indented bullet line.
func (p *TextPrinter) Item(format string, args ...any) {
	fmt.Fprintln(p.w, "  • "+fmt.Sprintf(format, args...))
}

// Field prints an aligned key/value line.
func (p *TextPrinter) Field(key string, value any) {
	fmt.Fprintf(p.w, "  %s %v\n", p.styles.Key.Render(key+":"), value)
}

// Muted prints a dimmed line.
func (p *TextPrinter) Muted(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.Muted.Render(fmt.Sprintf(format, args...)))
}

// FormatError formats errors based on output mode
func FormatError(err error, mode Mode, color bool) string {
	if err == nil {
		return ""
	}
	if mode == ModeJSON {
		return formatErrorJSON(err)
	}
	return formatErrorText(err, color)
}

func formatErrorJSON(err error) string {
	response := map[string]any{"error": err.Error(), "details": ""}
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		response = map[string]any{
			"code":    cliErr.Code,
			"error":   cliErr.Message,
			"details": cliErr.Details,
		}
	}
	var b strings.Builder
	if encErr := WriteJSON(&b, response); encErr != nil {
		return `{"error": "JSON marshaling failed", "details": ""}`
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func formatErrorText(err error, color bool) string {
	styles := NewStyles(color)
	message, details := err.Error(), ""
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		message, details = cliErr.Message, cliErr.Details
	}
	result := styles.Error.Render("✘ " + message)
	if details != "" {
		result += "\n" + styles.Muted.Italic(color).Render("Details: "+details)
	}
	return result
}

// OutputError writes an error to w in the appropriate format
func OutputError(w io.Writer, err error, mode Mode, color bool) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, FormatError(err, mode, color))
}
