package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result represents a result box (success, failure, or warning)
type Result struct {
	Type            ResultType // Success, failure, or warning
	Title           string     // e.g., "Credentials saved"
	Details         []Param    // Key-value details, rendered in order
	Error           error      // Error (for failure results)
	Troubleshooting []string   // Troubleshooting tips (for failure results)
	Width           int        // Terminal width
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Param) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting ...string) *Result {
	return &Result{Type: ResultFailure, Title: title, Error: err, Troubleshooting: troubleshooting, Width: GetTerminalWidth()}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Param) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: GetTerminalWidth()}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a detail key-value pair
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Param{Key: key, Value: value})
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := r.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	var (
		title lipgloss.Style
		color lipgloss.Color
		label string
		mark  string
	)
	switch r.Type {
	case ResultFailure:
		title, color, label, mark = ErrorTitleStyle, ErrorColor, "FAILED", FailureMarker
	case ResultWarning:
		title, color, label, mark = WarningTitleStyle, WarningColor, "WARNING", WarningMarker
	default:
		title, color, label, mark = SuccessTitleStyle, SuccessColor, "SUCCESS", SuccessMarker
	}

	lines := []string{"", title.Render(fmt.Sprintf(" %s  %s  ─  %s", mark, label, r.Title)), ""}

	if len(r.Details) > 0 {
		lines = append(lines, renderParams(r.Details), "")
	}
	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("  Error: "+r.Error.Error()), "")
	}
	if len(r.Troubleshooting) > 0 {
		lines = append(lines, HintStyle.Render("  Troubleshooting:"))
		for _, tip := range r.Troubleshooting {
			lines = append(lines, HintStyle.Render("    • "+tip))
		}
		lines = append(lines, "")
	}

	return boxStyle(color, width).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}
