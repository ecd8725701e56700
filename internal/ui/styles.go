// Package ui styles CLI output with ANSI 256 colors.
package ui

import "fmt"

const (
	colorAccent = 74  // blue
	colorMuted  = 245 // gray
	colorOK     = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 167 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent color. Used for ids and addresses.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderOK returns s in the success color.
func RenderOK(s string) string { return paint(colorOK, s) }

// RenderWarn returns s in the warning color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderFail returns s in the failure color.
func RenderFail(s string) string { return paint(colorFail, s) }

// RenderOutcome colors a crank outcome name.
func RenderOutcome(outcome string) string {
	switch outcome {
	case "released":
		return RenderOK(outcome)
	case "skipped":
		return RenderMuted(outcome)
	case "failed":
		return RenderFail(outcome)
	default:
		return outcome
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
