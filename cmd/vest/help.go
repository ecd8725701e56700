package main

import (
	"bytes"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/vesting/internal/ui"
)

// helpRule styles the submatches of one pattern in help text. Group 1 is
// left alone and group 2 is rendered; a pattern without groups renders the
// whole match.
type helpRule struct {
	re     *regexp.Regexp
	render func(string) string
}

var helpRules = []helpRule{
	// Section headers such as "Schedules:" or "Flags:".
	{regexp.MustCompile(`(?m)^()([A-Z][^\n]*:)[ \t]*$`), ui.RenderAccent},
	// Command names under a section.
	{regexp.MustCompile(`(?m)^(  )(\S+)  `), ui.RenderOK},
	// Flag value types such as "--at string".
	{regexp.MustCompile(`(--?\S+\s+)(string|int|int32|int64|uint64|bool|duration|stringSlice)\b`), ui.RenderMuted},
	// Defaults such as (default "hub").
	{regexp.MustCompile(`()(\(default [^)]*\))`), ui.RenderMuted},
}

// colorizedHelpFunc renders Cobra's usage text, styled when stdout is a
// color terminal.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if !ui.ShouldUseColor(os.Stdout) {
			_ = cmd.Usage()
			return
		}
		out := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		_, _ = out.Write([]byte(colorizeHelpOutput(buf.String())))
	}
}

func colorizeHelpOutput(s string) string {
	for _, rule := range helpRules {
		s = rule.re.ReplaceAllStringFunc(s, func(match string) string {
			m := rule.re.FindStringSubmatchIndex(match)
			// m[4]:m[5] is group 2; everything around it is kept verbatim.
			return match[:m[4]] + rule.render(match[m[4]:m[5]]) + match[m[5]:]
		})
	}
	return s
}
