package logger

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// Init installs the default logger. Verbose forces debug output; otherwise
// level is parsed from the configuration and falls back to warn.
func Init(level string, verbose, noColor bool) {
	log.SetDefault(log.NewWithOptions(os.Stderr,
		log.Options{
			ReportCaller:    verbose,
			ReportTimestamp: false,
			Prefix:          "MEMSIM",
		}))

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warn("unknown log level, using warn", "level", level)
		lvl = log.WarnLevel
	}
	if verbose {
		lvl = log.DebugLevel
	}
	log.SetLevel(lvl)

	log.SetColorProfile(termenv.ANSI256)
	if noColor {
		log.SetColorProfile(termenv.Ascii)
	}
}
