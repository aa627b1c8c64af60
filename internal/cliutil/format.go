// Package cliutil holds presentation helpers shared by the CLI and the TUI.
package cliutil

import (
	"fmt"
	"strings"

	"github.com/Paintersrp/procsup/internal/api"
)

// FormatUptime renders seconds as "1d 2h 3m 4s", omitting zero components.
// Non-positive values render as "N/A".
func FormatUptime(seconds int64) string {
	if seconds <= 0 {
		return "N/A"
	}
	days := seconds / 86400
	seconds %= 86400
	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60

	parts := make([]string, 0, 4)
	for _, p := range []struct {
		n    int64
		unit string
	}{{days, "d"}, {hours, "h"}, {minutes, "m"}, {seconds, "s"}} {
		if p.n != 0 {
			parts = append(parts, fmt.Sprintf("%d%s", p.n, p.unit))
		}
	}
	return strings.Join(parts, " ")
}

// FormatPID renders a pid, or "-" when there is no process.
func FormatPID(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

// ActionVerb is the past tense used when reporting an action result.
func ActionVerb(action string) string {
	switch action {
	case "start":
		return "Started"
	case "stop":
		return "Stopped"
	case "restart":
		return "Restarted"
	case "":
		return ""
	default:
		return strings.ToUpper(action[:1]) + action[1:]
	}
}

// FormatResult renders the outcome of an action for display.
func FormatResult(action, target string, res *api.ActionResult) string {
	result := ""
	if res != nil {
		result = res.Result
	}
	return fmt.Sprintf("%s program '%s': %s", ActionVerb(action), target, result)
}
