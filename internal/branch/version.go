// Package branch classifies git ref names into typed, attribute-bearing
// branch values and defines the version vocabulary of the branching model.
package branch

import (
	"fmt"
	"regexp"
	"strconv"
)

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?$`)

// Version is a major.minor line identifier, optionally pinned to a micro.
type Version struct {
	Major    int
	Minor    int
	Micro    int
	HasMicro bool
}

// ParseVersion parses "MAJOR.MINOR" or "MAJOR.MINOR.MICRO".
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	v := Version{Major: major, Minor: minor}
	if m[3] != "" {
		v.Micro, _ = strconv.Atoi(m[3])
		v.HasMicro = true
	}
	return v, nil
}

// String renders the version the way it appears in branch names.
func (v Version) String() string {
	if v.HasMicro {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Line returns the major.minor line the version belongs to.
func (v Version) Line() Version {
	return Version{Major: v.Major, Minor: v.Minor}
}

// Compare orders versions by (major, minor[, micro]). A version without a
// micro sorts before the same line pinned to any micro.
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		return cmp(v.Major, o.Major)
	}
	if v.Minor != o.Minor {
		return cmp(v.Minor, o.Minor)
	}
	if v.HasMicro != o.HasMicro {
		if v.HasMicro {
			return 1
		}
		return -1
	}
	if v.HasMicro {
		return cmp(v.Micro, o.Micro)
	}
	return 0
}

// SameLine reports whether two versions share a major.minor line.
func (v Version) SameLine(o Version) bool {
	return v.Major == o.Major && v.Minor == o.Minor
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
