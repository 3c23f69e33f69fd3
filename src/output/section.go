package output

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const sectionWidth = 61 // inner width between │ and line end

// Section renders a box-drawing framed output section.
type Section struct {
	w     io.Writer
	name  string
	color bool
}

// NewSection creates a section and writes its header.
// If elapsed is non-zero, it appears right-aligned in the header.
func NewSection(w io.Writer, name string, elapsed time.Duration, color bool) *Section {
	s := &Section{w: w, name: name, color: color}
	s.writeHeader(elapsed)
	return s
}

// Row writes a content line inside the section frame.
func (s *Section) Row(format string, args ...any) {
	fmt.Fprintf(s.w, "    │ %s\n", fmt.Sprintf(format, args...))
}

// Lines writes each line as its own row, dimmed. Used for log tails.
func (s *Section) Lines(lines []string) {
	for _, l := range lines {
		s.Row("  %s", Dimmed(l, s.color))
	}
}

// Separator writes a mid-section divider.
func (s *Section) Separator() {
	fmt.Fprintf(s.w, "    ├%s\n", strings.Repeat("─", sectionWidth))
}

// Close writes the section footer.
func (s *Section) Close() {
	fmt.Fprintf(s.w, "    └%s\n", strings.Repeat("─", sectionWidth))
}

// writeHeader renders: ── Name ──────────────────── elapsed ──
func (s *Section) writeHeader(elapsed time.Duration) {
	label := fmt.Sprintf("── %s ", s.name)

	suffix := "──"
	if elapsed > 0 {
		suffix = fmt.Sprintf(" %s ──", formatElapsed(elapsed))
	}

	// label and suffix are counted in runes, ─ is multi-byte
	fill := sectionWidth + 4 - len([]rune(label)) - len([]rune(suffix))
	if fill < 1 {
		fill = 1
	}

	if s.color {
		fmt.Fprintf(s.w, "\n    \033[2;36m%s%s%s\033[0m\n", label, strings.Repeat("─", fill), suffix)
	} else {
		fmt.Fprintf(s.w, "\n    %s%s%s\n", label, strings.Repeat("─", fill), suffix)
	}
}

// StatusIcon returns a status icon for success, failed or anything else
// (skipped, planned).
func StatusIcon(status string, color bool) string {
	var icon, code string
	switch status {
	case "success":
		icon, code = "✓", "\033[32m"
	case "failed":
		icon, code = "✗", "\033[31m"
	default:
		icon, code = "⊘", "\033[33m"
	}
	if !color {
		return icon
	}
	return code + icon + colorReset
}

// Dimmed returns dimmed text if color is enabled.
func Dimmed(text string, color bool) string {
	if !color {
		return text
	}
	return colorGray + text + colorReset
}

// KV is a key-value pair for the context block.
type KV struct {
	Key   string
	Value string
}

// ContextBlock prints the run context, one aligned pair per line.
func ContextBlock(w io.Writer, kv []KV) {
	if len(kv) == 0 {
		return
	}
	width := 0
	for _, p := range kv {
		if len(p.Key) > width {
			width = len(p.Key)
		}
	}
	fmt.Fprintln(w)
	for _, p := range kv {
		fmt.Fprintf(w, "    %-*s  %s\n", width, p.Key, p.Value)
	}
}

// formatElapsed formats a duration for display in section headers.
func formatElapsed(d time.Duration) string {
	if d < time.Millisecond {
		return "<1ms"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := d.Seconds() - float64(mins*60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// SummaryRow writes a summary line with status icon.
func SummaryRow(w io.Writer, name, status, detail string, color bool) {
	fmt.Fprintf(w, "    │ %-12s%s  %s\n", name, StatusIcon(status, color), detail)
}

// SummaryTotal writes the final total line.
func SummaryTotal(w io.Writer, elapsed time.Duration, status string, color bool) {
	fmt.Fprintf(w, "    │ %-12s%40s   %s\n", "total", formatElapsed(elapsed), StatusIcon(status, color))
}
