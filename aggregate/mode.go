package aggregate

import (
	"fmt"
	"strings"
)

// Mode selects how a series contributes to the shared axis.
type Mode uint8

const (
	// Fit scales the series to itself; it contributes nothing.
	Fit Mode = iota
	// Global puts the series' min and max on the shared axis.
	Global
	// AlignStart lines every aligned series up on its first sample.
	AlignStart
	// AlignEnd lines every aligned series up on its last sample.
	AlignEnd
)

var modeNames = [...]string{"fit", "global", "align_start", "align_end"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", m)
}

func (m Mode) aligned() bool {
	return m == AlignStart || m == AlignEnd
}

func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return Fit, fmt.Errorf("aggregate: unknown mode %q", s)
}
