package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/sofmeright/verbuild/src/build"
)

// Colors for terminal output.
const (
	colorReset = "\033[0m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

// failureTail is how many log lines a failed step shows.
const failureTail = 15

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// UseColor returns true if colored output should be used.
// Respects NO_COLOR env, TERM=dumb, and terminal detection.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal() || IsCI()
}

// Bold returns bold text if color is enabled.
func Bold(text string, color bool) string {
	if !color {
		return text
	}
	return colorBold + text + colorReset
}

// RowStatus writes a row with label, detail, and a status icon.
func RowStatus(sec *Section, label, detail, status string, color bool) {
	icon := StatusIcon(status, color)
	if detail != "" {
		sec.Row("%-14s %s %s", label, detail, icon)
	} else {
		sec.Row("%-14s %s", label, icon)
	}
}

// StepRow writes one version's outcome. Failed steps are followed by the
// error and the tail of the toolchain log.
func StepRow(sec *Section, step build.StepResult, color bool) {
	detail := step.Ref
	if step.Revision != nil && step.Revision.SHA != "" {
		detail = fmt.Sprintf("%s @ %s", step.Ref, step.Revision.SHA)
	}
	if step.Duration > 0 {
		detail += "  " + Dimmed(formatElapsed(step.Duration), color)
	}
	RowStatus(sec, step.Name, detail, string(step.Status), color)

	if step.Status != build.StatusFailed {
		return
	}
	if step.Error != nil {
		sec.Row("  %s", step.Error)
	}
	sec.Lines(build.Tail(step.Log, failureTail))
}

// PlanRow writes a version that would be built, with the command that
// would publish it.
func PlanRow(sec *Section, name, ref string, args []string, color bool) {
	sec.Row("%s %s", Bold(fmt.Sprintf("%-14s", name), color), ref)
	if len(args) > 0 {
		sec.Row("  %s", Dimmed(strings.Join(args, " "), color))
	}
}
