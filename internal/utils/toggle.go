package utils

import (
	"fmt"
	"strings"
)

// ParseToggle resolves an on/off command argument against the current
// value. An empty argument flips the current state.
func ParseToggle(arg string, current bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "":
		return !current, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", arg)
	}
}
