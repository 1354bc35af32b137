//go:build !windows

package colors

import "fmt"

// enabled describes whether ANSI escape codes are emitted
var enabled = true

// EnableColor turns on colorization. Non-windows terminals are assumed to support ANSI escape codes.
func EnableColor() {
	enabled = true
}

// DisableColor turns off colorization, e.g. when output is redirected or --no-color is set.
func DisableColor() {
	enabled = false
}

// Colorize returns the string s wrapped in ANSI code c, or s unchanged if colorization is disabled.
// Source: https://github.com/rs/zerolog/blob/4fff5db29c3403bc26dee9895e12a108aacc0203/console.go
func Colorize(s any, c Color) string {
	if !enabled {
		return fmt.Sprintf("%v", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
