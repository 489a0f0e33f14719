package theme

import (
	"os"

	"github.com/grovetools/testwatch/pkg/models"
)

// Nerd Font Icons (Private Constants)
const (
	nerdIconPassed  = "\U000f012c" // md-check (U+F012C)
	nerdIconFailed  = "\uf467"     // oct-x (U+F467)
	nerdIconSkipped = "\U000f04ad" // md-skip_next (U+F04AD)
	nerdIconRunning = "\U000f051f" // md-timer_sand (U+F051F)
	nerdIconUnknown = "\U000f0131" // md-checkbox_blank_outline (U+F0131)
	nerdIconPending = "\U000f0996" // md-progress_clock (U+F0996)
	nerdIconArrow   = "\U000f0054" // md-arrow_right (U+F0054)
	nerdIconSearch  = "\uf002"     // fa-search (U+F002)
	nerdIconWarning = "\uf071"     // fa-warning (U+F071)
)

// ASCII Icons (Private Constants)
const (
	asciiIconPassed  = "[ok]"
	asciiIconFailed  = "[x]"
	asciiIconSkipped = "[-]"
	asciiIconRunning = "[~]"
	asciiIconUnknown = "[ ]"
	asciiIconPending = "[.]"
	asciiIconArrow   = ">"
	asciiIconSearch  = "/"
	asciiIconWarning = "!"
)

// Public icon variables, chosen at init from TESTWATCH_ICONS.
var (
	IconPassed  string
	IconFailed  string
	IconSkipped string
	IconRunning string
	IconUnknown string
	IconPending string
	IconArrow   string
	IconSearch  string
	IconWarning string
)

func init() {
	UseASCIIIcons(os.Getenv("TESTWATCH_ICONS") == "ascii")
}

// UseASCIIIcons switches between the Nerd Font and ASCII icon sets.
func UseASCIIIcons(ascii bool) {
	if ascii {
		IconPassed = asciiIconPassed
		IconFailed = asciiIconFailed
		IconSkipped = asciiIconSkipped
		IconRunning = asciiIconRunning
		IconUnknown = asciiIconUnknown
		IconPending = asciiIconPending
		IconArrow = asciiIconArrow
		IconSearch = asciiIconSearch
		IconWarning = asciiIconWarning
		return
	}
	IconPassed = nerdIconPassed
	IconFailed = nerdIconFailed
	IconSkipped = nerdIconSkipped
	IconRunning = nerdIconRunning
	IconUnknown = nerdIconUnknown
	IconPending = nerdIconPending
	IconArrow = nerdIconArrow
	IconSearch = nerdIconSearch
	IconWarning = nerdIconWarning
}

// StatusIcon returns the icon for a test file outcome.
func StatusIcon(status models.TestStatus) string {
	switch status {
	case models.TestStatusPassed:
		return IconPassed
	case models.TestStatusFailed:
		return IconFailed
	case models.TestStatusSkipped:
		return IconSkipped
	case models.TestStatusRunning:
		return IconRunning
	default:
		return IconUnknown
	}
}
