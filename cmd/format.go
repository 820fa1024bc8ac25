package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var colorOutput = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

// Define styles using lipgloss
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	classificationStyles = map[string]lipgloss.Style{
		"UNCLASSIFIED": lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		"CONFIDENTIAL": lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		"SECRET":       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"TOP SECRET":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
	}
)

// paint renders s with st when stdout is a terminal.
func paint(st lipgloss.Style, s string) string {
	if !colorOutput {
		return s
	}
	return st.Render(s)
}

func paintClassification(level string) string {
	if st, ok := classificationStyles[level]; ok {
		return paint(st, level)
	}
	return level
}

// renderTable draws rows under headers with a rounded border.
func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(rows...)
	if colorOutput {
		t = t.BorderStyle(metaStyle).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle.Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
	} else {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	return t.String()
}

// writeStructured writes v as JSON or YAML. It reports false for any other
// format so the caller can fall back to text output.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case "", formatText:
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// formatValue renders a column value on one line.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return paint(metaStyle, "null")
	case string:
		return truncate(strings.Join(strings.Fields(val), " "), 80)
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// formatTime formats a time relative to now or as an absolute date
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	now := time.Now()
	diff := now.Sub(t)

	if diff < time.Hour {
		minutes := int(diff.Minutes())
		if minutes < 1 {
			return "just now"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	}
	if diff < 24*time.Hour {
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 2, 15:04")
	}
	return t.Format("Jan 2, 2006")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
