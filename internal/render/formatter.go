package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Formatter turns a display model into bytes for one output medium
type Formatter interface {
	Format(dm DisplayModel) ([]byte, error)
}

// Options shared by all formatters
type Options struct {
	Color        bool
	IncludeImage bool
}

// Formats lists the names accepted by NewFormatter
var Formats = []string{"text", "markdown", "json", "terminal"}

// NewFormatter returns the formatter registered under name
func NewFormatter(name string, opts Options) (Formatter, error) {
	switch strings.ToLower(name) {
	case "text", "":
		return &textFormatter{opts: opts}, nil
	case "markdown", "md":
		return &markdownFormatter{opts: opts}, nil
	case "json":
		return &jsonFormatter{opts: opts}, nil
	case "terminal":
		if !opts.Color {
			return &textFormatter{opts: opts}, nil
		}
		return newTerminalFormatter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (must be one of: %s)", name, strings.Join(Formats, ", "))
	}
}

type textFormatter struct {
	opts Options
}

func (f *textFormatter) Format(dm DisplayModel) ([]byte, error) {
	var b strings.Builder

	b.WriteString(dm.Badge.Text() + "\n")
	b.WriteString(dm.Message + "\n")

	if dm.HasDetections() {
		b.WriteString("\nDetection Details\n")
		for _, d := range dm.Detections {
			fmt.Fprintf(&b, "%s %s  %s confident\n", d.Icon, d.ClassName, d.Confidence)
			fmt.Fprintf(&b, "  Count: %s | Severity: %s\n", d.Count, d.Severity)
			if d.Description != "" {
				fmt.Fprintf(&b, "  %s\n", d.Description)
			}
			if d.Recommendation != "" {
				fmt.Fprintf(&b, "  Recommendation: %s\n", d.Recommendation)
			}
		}
	}

	if dm.HasRecommendations() {
		b.WriteString("\nRecommended Actions\n")
		for i, r := range dm.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
	}

	b.WriteString("\n" + dm.Footer + "\n")
	if f.opts.IncludeImage {
		b.WriteString("Annotated image: " + dm.AnnotatedImage + "\n")
	}
	return []byte(b.String()), nil
}

type markdownFormatter struct {
	opts Options
}

func (f *markdownFormatter) Format(dm DisplayModel) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "**%s**\n\n", dm.Badge.Text())
	fmt.Fprintf(&b, "%s\n", dm.Message)

	if dm.HasDetections() {
		b.WriteString("\n#### Detection Details\n")
		for _, d := range dm.Detections {
			fmt.Fprintf(&b, "\n- **%s %s** (%s confident)\n", d.Icon, d.ClassName, d.Confidence)
			fmt.Fprintf(&b, "  - **Count:** %s | **Severity:** %s\n", d.Count, d.Severity)
			if d.Description != "" {
				fmt.Fprintf(&b, "  - %s\n", d.Description)
			}
			if d.Recommendation != "" {
				fmt.Fprintf(&b, "  - **Recommendation:** %s\n", d.Recommendation)
			}
		}
	}

	if dm.HasRecommendations() {
		b.WriteString("\n#### Recommended Actions\n\n")
		for i, r := range dm.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
	}

	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, "%s\n", strings.Replace(dm.Footer, "Analysis Type:", "**Analysis Type:**", 1))
	if f.opts.IncludeImage {
		fmt.Fprintf(&b, "\n![annotated image](%s)\n", dm.AnnotatedImage)
	}
	return []byte(b.String()), nil
}

type jsonFormatter struct {
	opts Options
}

func (f *jsonFormatter) Format(dm DisplayModel) ([]byte, error) {
	if !f.opts.IncludeImage {
		dm.AnnotatedImage = ""
	}
	out, err := json.MarshalIndent(dm, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

var statusColors = map[string]lipgloss.Color{
	"healthy":  lipgloss.Color("#10b981"),
	"warning":  lipgloss.Color("#f59e0b"),
	"critical": lipgloss.Color("#ef4444"),
}

type terminalFormatter struct {
	opts    Options
	heading lipgloss.Style
	muted   lipgloss.Style
	bold    lipgloss.Style
}

func newTerminalFormatter(opts Options) *terminalFormatter {
	return &terminalFormatter{
		opts:    opts,
		heading: lipgloss.NewStyle().Bold(true).MarginTop(1),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280")),
		bold:    lipgloss.NewStyle().Bold(true),
	}
}

func (f *terminalFormatter) Format(dm DisplayModel) ([]byte, error) {
	var sections []string

	badge := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Foreground(lipgloss.Color("#ffffff")).
		Background(statusColors[string(dm.Badge.Status)]).
		Render(dm.Badge.Text())
	sections = append(sections, badge, f.bold.Render(dm.Message))

	if dm.HasDetections() {
		sections = append(sections, f.heading.Render("Detection Details"))
		for _, d := range dm.Detections {
			sections = append(sections, f.detection(d))
		}
	}

	if dm.HasRecommendations() {
		sections = append(sections, f.heading.Render("Recommended Actions"))
		items := make([]string, 0, len(dm.Recommendations))
		for i, r := range dm.Recommendations {
			items = append(items, fmt.Sprintf("%d. %s", i+1, r))
		}
		sections = append(sections, strings.Join(items, "\n"))
	}

	sections = append(sections, f.muted.MarginTop(1).Render(dm.Footer))
	if f.opts.IncludeImage {
		sections = append(sections, f.muted.Render(dm.AnnotatedImage))
	}

	return []byte(lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"), nil
}

func (f *terminalFormatter) detection(d DetectionBlock) string {
	accent := lipgloss.Color(d.Color)
	if d.Color == "" {
		accent = lipgloss.Color("#6b7280")
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(d.Icon+" "+d.ClassName) +
		"  " + f.muted.Render(d.Confidence+" confident")

	lines := []string{
		header,
		fmt.Sprintf("Count: %s | Severity: %s", d.Count, d.Severity),
	}
	if d.Description != "" {
		lines = append(lines, d.Description)
	}
	if d.Recommendation != "" {
		lines = append(lines, f.bold.Render("Recommendation: ")+d.Recommendation)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(accent).
		PaddingLeft(1).
		MarginTop(1).
		Render(strings.Join(lines, "\n"))
}
