// Package gnu orders version strings the way dpkg and GNU sort -V do.
package gnu

import (
	"cmp"
	"slices"
	"strings"
)

// Compare returns -1, 0 or 1 as a sorts before, equal to or after b.
//
// Both strings are split into alternating non-digit and digit runs. Digit
// runs compare numerically; non-digit runs compare character by character
// with letters before other characters and '~' before everything, even the
// end of the string. "7.0.8-9" therefore sorts before "7.0.8-10".
func Compare(a, b string) int {
	for a != "" || b != "" {
		var x, y string
		x, a = cut(a, false)
		y, b = cut(b, false)
		if c := compareText(x, y); c != 0 {
			return c
		}
		x, a = cut(a, true)
		y, b = cut(b, true)
		if c := compareNumber(x, y); c != 0 {
			return c
		}
	}
	return 0
}

// Sort sorts versions in ascending order.
func Sort(versions []string) {
	slices.SortStableFunc(versions, Compare)
}

// cut splits the leading run of digits (or non-digits) off s.
func cut(s string, digits bool) (run, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) == digits {
		i++
	}
	return s[:i], s[i:]
}

func compareText(x, y string) int {
	for i := 0; i < len(x) || i < len(y); i++ {
		var cx, cy byte
		if i < len(x) {
			cx = x[i]
		}
		if i < len(y) {
			cy = y[i]
		}
		if c := cmp.Compare(order(cx), order(cy)); c != 0 {
			return c
		}
	}
	return 0
}

func compareNumber(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if c := cmp.Compare(len(x), len(y)); c != 0 {
		return c
	}
	return strings.Compare(x, y)
}

// order ranks a character of a non-digit run. 0 stands for the end of the
// run.
func order(c byte) int {
	switch {
	case c == 0 || isDigit(c):
		return 0
	case isAlpha(c):
		return int(c)
	case c == '~':
		return -1
	}
	return int(c) + 256
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
