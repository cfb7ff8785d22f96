package initializer

import (
	"io"
	"log/slog"
	"os"

	"github.com/amirasaad/ledgersync/pkg/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var levelStyles = map[log.Level]struct {
	icon  string
	color lipgloss.AdaptiveColor
}{
	log.ErrorLevel: {"❌", lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}},
	log.WarnLevel:  {"⚠️", lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}},
	log.InfoLevel:  {"ℹ️", lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}},
	log.DebugLevel: {"🐛", lipgloss.AdaptiveColor{Light: "#7E57C2", Dark: "#7E57C2"}},
}

// highlighted keys get the debug colour and a bold value.
var highlighted = []string{"account_id", "transaction_id", "correlation_id", "route", "component", "caller", "time"}

// SetupLogger builds the process logger for service and installs it as the
// slog default.
func SetupLogger(cfg *config.Log, service string) *slog.Logger {
	logger := newLogger(os.Stdout, cfg, service)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, cfg *config.Log, service string) *slog.Logger {
	if cfg == nil {
		cfg = &config.Log{Format: "text"}
	}

	styles := log.DefaultStyles()
	for level, s := range levelStyles {
		styles.Levels[level] = lipgloss.NewStyle().
			SetString(s.icon).
			Bold(true).
			Padding(0, 1).
			Foreground(s.color)
	}
	errColor := levelStyles[log.ErrorLevel].color
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(errColor)
	styles.Values["error"] = lipgloss.NewStyle().Bold(true)
	keyColor := levelStyles[log.DebugLevel].color
	for _, key := range highlighted {
		styles.Keys[key] = lipgloss.NewStyle().Foreground(keyColor)
		styles.Values[key] = lipgloss.NewStyle().Bold(true)
	}

	formatter := log.TextFormatter
	switch cfg.Format {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}

	prefix := cfg.Prefix
	if service != "" {
		prefix = cfg.Prefix + "[" + service + "]"
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Level:           log.Level(cfg.Level),
		Prefix:          prefix,
		Formatter:       formatter,
	})
	logger.SetStyles(styles)
	return slog.New(logger)
}
