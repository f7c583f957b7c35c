package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the state file's "MAJOR.MINOR" format version (spec §4.8).
type Version struct {
	Major int
	Minor int
}

// CurrentVersion is the format version this build writes.
var CurrentVersion = Version{Major: 1, Minor: 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion parses a "MAJOR.MINOR" string.
func ParseVersion(s string) (Version, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("types: malformed version %q", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("types: malformed version %q: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("types: malformed version %q: %w", s, err)
	}
	return Version{Major: major, Minor: minor}, nil
}

// CompatibleWith reports whether a file written with v can be read by
// a reader built for want: major versions must match exactly (spec §4.8).
func (v Version) CompatibleWith(want Version) bool {
	return v.Major == want.Major
}
