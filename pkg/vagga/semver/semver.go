// Package semver implements the loose, component-wise version
// ordering used to compare tool and manifest version strings like
// "v0.4.1-28-gfba00d7" (a git-describe style release-plus-revision
// string), as opposed to the fixed-width content hashes in
// pkg/vagga/digest.
package semver

import (
	"strconv"
	"strings"
)

// preReleaseMarkers are string components that indicate a pre-release
// or development build, so a string missing entirely (i.e. the "final"
// release) outranks them.
var preReleaseMarkers = map[string]bool{
	"a": true, "b": true, "c": true, "rc": true, "pre": true, "dev": true, "dirty": true,
}

// component is one alternating numeric/string run of a version string.
type component struct {
	numeric bool
	num     uint64
	str     string
}

// components splits s into its alternating numeric/alphanumeric runs,
// skipping a leading 'v' and any punctuation between runs.
func components(s string) []component {
	runes := []rune(s)
	i := 0
	if len(runes) > 0 && runes[0] == 'v' {
		i = 1
	}
	var out []component
	for i < len(runes) {
		for i < len(runes) && !isAlnum(runes[i]) {
			i++
		}
		if i >= len(runes) {
			break
		}
		start := i
		if isDigit(runes[i]) {
			for i < len(runes) && isDigit(runes[i]) {
				i++
			}
			val := string(runes[start:i])
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				out = append(out, component{str: val})
			} else {
				out = append(out, component{numeric: true, num: n})
			}
		} else {
			for i < len(runes) && isAlnum(runes[i]) {
				i++
			}
			out = append(out, component{str: string(runes[start:i])})
		}
	}
	return out
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
func isAlnum(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater
// than b, under vagga's loose version ordering: numeric runs compare
// numerically, string runs compare lexicographically, a numeric run
// always outranks a string run at the same position, and a version
// that runs out of components loses to a trailing numeric component
// but beats a trailing pre-release marker string (so "1.0.0" >
// "1.0.0-rc1" but "1.0.0" < "1.0.0.1").
func Compare(a, b string) int {
	ac, bc := components(a), components(b)
	i := 0
	for {
		var av, bv *component
		if i < len(ac) {
			av = &ac[i]
		}
		if i < len(bc) {
			bv = &bc[i]
		}
		if av == nil && bv == nil {
			return 0
		}

		switch {
		case av != nil && bv != nil && av.numeric && bv.numeric:
			if av.num != bv.num {
				if av.num < bv.num {
					return -1
				}
				return 1
			}
		case av != nil && bv != nil && av.numeric && !bv.numeric:
			return 1
		case av != nil && bv != nil && !av.numeric && bv.numeric:
			return -1
		case av != nil && bv != nil:
			if c := strings.Compare(av.str, bv.str); c != 0 {
				return sign(c)
			}
		case av != nil && av.numeric && bv == nil:
			return 1
		case av == nil && bv != nil && bv.numeric:
			return -1
		case av == nil && bv != nil && !bv.numeric:
			if preReleaseMarkers[bv.str] || strings.HasPrefix(bv.str, "g") {
				return 1
			}
			return -1
		case av != nil && !av.numeric && bv == nil:
			if preReleaseMarkers[av.str] || strings.HasPrefix(av.str, "g") {
				return -1
			}
			return 1
		}
		i++
	}
}

func sign(c int) int {
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	default:
		return 0
	}
}

// Less reports whether a < b under Compare.
func Less(a, b string) bool { return Compare(a, b) < 0 }
