package report

import (
	"strings"

	"github.com/signalnine/ripedome/internal/result"
)

const (
	ansiRed    = "\033[91m"
	ansiGreen  = "\033[92m"
	ansiOrange = "\033[93m"
	ansiBold   = "\033[1m"
	ansiReset  = "\033[0m"
)

// paint wraps s in an ANSI color and pads the visible text to size.
func paint(s, color string, size int, enabled bool) string {
	pad := ""
	if size > len(s) {
		pad = strings.Repeat(" ", size-len(s))
	}
	if !enabled {
		return s + pad
	}
	return color + s + ansiReset + pad
}

func verdictColor(v result.Verdict) string {
	switch v {
	case result.Success:
		return ansiGreen
	case result.PartialSuccess:
		return ansiOrange
	default:
		return ansiRed
	}
}

func severityColor(s result.Severity) string {
	if s == result.Info {
		return ansiOrange
	}
	return ansiRed
}
