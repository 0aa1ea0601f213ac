// Package versions compares protocol version strings and reports build metadata.
package versions

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Same reports whether two version strings are identical once surrounding whitespace is
// trimmed. No normalisation happens: "1.0" and "1.0.0" are different versions.
func Same(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

// Equivalent reports whether two version strings parse to the same semantic version even
// though they may be spelled differently, e.g. "v0.0.2" and "0.0.2". Strings that are not
// semver are never equivalent unless they are the Same.
func Equivalent(a, b string) bool {
	if Same(a, b) {
		return true
	}
	av, errA := semver.NewVersion(strings.TrimSpace(a))
	bv, errB := semver.NewVersion(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return false
	}
	return av.Equal(bv)
}
