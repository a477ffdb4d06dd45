package theme

import (
	"github.com/pterm/pterm"
)

// Theme defines the colour scheme used by the styled logger.
type Theme struct {
	// Log level colours
	Debug *pterm.Style
	Info  *pterm.Style
	Warn  *pterm.Style
	Error *pterm.Style
	Fatal *pterm.Style

	// Component colours
	Success   *pterm.Style
	Highlight *pterm.Style
	Muted     *pterm.Style
	Accent    *pterm.Style

	// Domain colours
	Service         pterm.Color
	Counts          pterm.Color
	Numbers         pterm.Color
	BreakerClosed   pterm.Color
	BreakerOpen     pterm.Color
	BreakerHalfOpen pterm.Color
}

// Default returns the default application theme.
func Default() *Theme {
	return &Theme{
		Debug: pterm.NewStyle(pterm.FgLightBlue),
		Info:  pterm.NewStyle(pterm.FgGreen),
		Warn:  pterm.NewStyle(pterm.FgYellow, pterm.Bold),
		Error: pterm.NewStyle(pterm.FgRed, pterm.Bold),
		Fatal: pterm.NewStyle(pterm.FgWhite, pterm.BgRed, pterm.Bold),

		Success:   pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		Highlight: pterm.NewStyle(pterm.FgCyan, pterm.Bold),
		Muted:     pterm.NewStyle(pterm.FgGray),
		Accent:    pterm.NewStyle(pterm.FgMagenta),

		Service:         pterm.FgCyan,
		Counts:          pterm.FgMagenta,
		Numbers:         pterm.FgBlue,
		BreakerClosed:   pterm.FgGreen,
		BreakerOpen:     pterm.FgRed,
		BreakerHalfOpen: pterm.FgYellow,
	}
}

// Dark returns a dark theme variant.
func Dark() *Theme {
	return &Theme{
		Debug: pterm.NewStyle(pterm.FgLightBlue),
		Info:  pterm.NewStyle(pterm.FgLightGreen),
		Warn:  pterm.NewStyle(pterm.FgLightYellow, pterm.Bold),
		Error: pterm.NewStyle(pterm.FgLightRed, pterm.Bold),
		Fatal: pterm.NewStyle(pterm.FgWhite, pterm.BgRed, pterm.Bold),

		Success:   pterm.NewStyle(pterm.FgLightGreen, pterm.Bold),
		Highlight: pterm.NewStyle(pterm.FgLightCyan, pterm.Bold),
		Muted:     pterm.NewStyle(pterm.FgGray),
		Accent:    pterm.NewStyle(pterm.FgLightMagenta),

		Service:         pterm.FgLightCyan,
		Counts:          pterm.FgLightMagenta,
		Numbers:         pterm.FgLightBlue,
		BreakerClosed:   pterm.FgLightGreen,
		BreakerOpen:     pterm.FgLightRed,
		BreakerHalfOpen: pterm.FgLightYellow,
	}
}

// Light returns a light theme variant.
func Light() *Theme {
	return &Theme{
		Debug: pterm.NewStyle(pterm.FgBlue),
		Info:  pterm.NewStyle(pterm.FgBlack),
		Warn:  pterm.NewStyle(pterm.FgRed, pterm.Bold),
		Error: pterm.NewStyle(pterm.FgRed, pterm.Bold),
		Fatal: pterm.NewStyle(pterm.FgWhite, pterm.BgRed, pterm.Bold),

		Success:   pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		Highlight: pterm.NewStyle(pterm.FgBlue, pterm.Bold),
		Muted:     pterm.NewStyle(pterm.FgGray),
		Accent:    pterm.NewStyle(pterm.FgMagenta),

		Service:         pterm.FgBlue,
		Counts:          pterm.FgMagenta,
		Numbers:         pterm.FgBlue,
		BreakerClosed:   pterm.FgGreen,
		BreakerOpen:     pterm.FgRed,
		BreakerHalfOpen: pterm.FgRed,
	}
}

// GetTheme returns the appropriate theme based on a config name.
func GetTheme(name string) *Theme {
	switch name {
	case "dark":
		return Dark()
	case "light":
		return Light()
	default:
		return Default()
	}
}

// Hyperlink creates a terminal hyperlink escape sequence.
func Hyperlink(uri string, text string) string {
	return "\x1b]8;;" + uri + "\x07" + text + "\x1b]8;;\x07" + "[0m"
}
