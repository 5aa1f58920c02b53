package color

import (
	"fmt"
	"os"
)

const (
	Reset = "\033[0m"
	Bold  = "\033[1m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"

	BrightRed = "\033[91m"
)

var colorEnabled = true

func init() {
	if os.Getenv("NO_COLOR") != "" || !isTerminal() {
		colorEnabled = false
	}
}

func isTerminal() bool {
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

func EnableColor(enable bool) {
	colorEnabled = enable
}

func IsColorEnabled() bool {
	return colorEnabled
}

func Colorize(color, text string) string {
	if !colorEnabled {
		return text
	}
	return color + text + Reset
}

func RedText(text string) string     { return Colorize(Red, text) }
func GreenText(text string) string   { return Colorize(Green, text) }
func YellowText(text string) string  { return Colorize(Yellow, text) }
func BlueText(text string) string    { return Colorize(Blue, text) }
func MagentaText(text string) string { return Colorize(Magenta, text) }
func CyanText(text string) string    { return Colorize(Cyan, text) }
func GrayText(text string) string    { return Colorize(Gray, text) }
func BoldText(text string) string    { return Colorize(Bold, text) }

// Heading renders a section title
func Heading(title string) string {
	return Colorize(Bold+Green, "=== "+title+" ===")
}

// Address renders a simulated heap address as 0x-prefixed hex
func Address(addr uint64) string {
	return CyanText(fmt.Sprintf("0x%04x", addr))
}

// Location renders a function:line pair
func Location(function string, line int) string {
	return BlueText(fmt.Sprintf("%s:%d", function, line))
}

// Entry colors a log entry by its kind. Failed entries are always red.
func Entry(kind, text string, failed bool) string {
	if failed {
		return Colorize(BrightRed, text)
	}
	switch kind {
	case "ALLOCATE":
		return GreenText(text)
	case "FREE":
		return YellowText(text)
	case "CALL", "RETURN":
		return BlueText(text)
	case "GC":
		return MagentaText(text)
	}
	return text
}

// Status colors an interpreter status word
func Status(status string) string {
	switch status {
	case "complete":
		return GreenText(status)
	case "halted":
		return Colorize(BrightRed, status)
	}
	return GrayText(status)
}

// Cell renders one heap map cell
func Cell(used bool) string {
	if used {
		return GreenText("#")
	}
	return GrayText(".")
}
