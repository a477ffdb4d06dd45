// internal/logger/styled.go
package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/EKerSun/rpcgo/theme"
)

// StyledLogger wraps slog.Logger with theme-aware formatting methods
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

// NewStyledLogger creates a new styled logger with the given theme
func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		theme:  theme,
	}
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

// InfoWithService logs an info message annotated with a styled service name.
func (sl *StyledLogger) InfoWithService(msg string, service string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Service}.Sprint(service))
	sl.logger.Info(styledMsg, args...)
}

// WarnWithService logs a warning message annotated with a styled service name.
func (sl *StyledLogger) WarnWithService(msg string, service string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Service}.Sprint(service))
	sl.logger.Warn(styledMsg, args...)
}

// ErrorWithService logs an error message annotated with a styled service name.
func (sl *StyledLogger) ErrorWithService(msg string, service string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Service}.Sprint(service))
	sl.logger.Error(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithNumbers(msg string, numbers ...int64) {
	var formattedNums []string
	for _, num := range numbers {
		formattedNums = append(formattedNums, pterm.Style{sl.theme.Numbers}.Sprint(num))
	}

	// Build message with styled numbers
	styledMsg := fmt.Sprintf(msg, toInterfaceSlice(formattedNums)...)
	sl.logger.Info(styledMsg)
}

// InfoBreakerState logs a breaker transition for a service, colouring the
// state name according to CLOSED/OPEN/HALF_OPEN.
func (sl *StyledLogger) InfoBreakerState(msg string, service string, state string, args ...any) {
	var stateColor pterm.Color
	switch state {
	case "CLOSED":
		stateColor = sl.theme.BreakerClosed
	case "OPEN":
		stateColor = sl.theme.BreakerOpen
	case "HALF_OPEN":
		stateColor = sl.theme.BreakerHalfOpen
	default:
		stateColor = sl.theme.BreakerClosed
	}
	styledMsg := fmt.Sprintf("%s %s -> %s", msg, pterm.Style{sl.theme.Service}.Sprint(service), pterm.Style{stateColor}.Sprint(state))
	sl.logger.Info(styledMsg, args...)
}

// WarnBreakerState is the warning-level counterpart of InfoBreakerState, used
// when a breaker trips open.
func (sl *StyledLogger) WarnBreakerState(msg string, service string, state string, args ...any) {
	var stateColor pterm.Color
	switch state {
	case "CLOSED":
		stateColor = sl.theme.BreakerClosed
	case "OPEN":
		stateColor = sl.theme.BreakerOpen
	case "HALF_OPEN":
		stateColor = sl.theme.BreakerHalfOpen
	default:
		stateColor = sl.theme.BreakerOpen
	}
	styledMsg := fmt.Sprintf("%s %s -> %s", msg, pterm.Style{sl.theme.Service}.Sprint(service), pterm.Style{stateColor}.Sprint(state))
	sl.logger.Warn(styledMsg, args...)
}

// GetUnderlying returns the underlying slog.Logger for cases where direct access is needed
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

// WithAttrs creates a new StyledLogger with additional structured attributes
func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	// Convert slog.Attr to key-value pairs
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}

	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
	}
}

// With creates a new StyledLogger with additional key-value pairs
func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
	}
}

// Helper function to convert string slice to interface slice
func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

// NewWithTheme creates both a regular logger and a styled logger
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}
