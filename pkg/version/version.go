// Package version models message schema versions and conversion between
// them: semantic three-part versions, same-major compatibility, and a
// converter registry that chains registered steps along the shortest path.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersion is returned for malformed version strings.
var ErrInvalidVersion = errors.New("invalid message version")

// Version is a message schema version. The zero value is 0.0.0.
type Version struct {
	Major int
	Minor int
	Patch int
}

// New creates a version.
func New(major, minor, patch int) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// Parse reads "major", "major.minor" or "major.minor.patch". Omitted parts
// default to zero.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	var numbers [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		numbers[i] = n
	}
	return Version{Major: numbers[0], Minor: numbers[1], Patch: numbers[2]}, nil
}

// MustParse is Parse that panics on malformed input. For constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the full three-part form, so Parse(v.String()) == v.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare orders versions: -1 when v < other, 0 when equal, 1 when v > other.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return sign(v.Major - other.Major)
	}
	if v.Minor != other.Minor {
		return sign(v.Minor - other.Minor)
	}
	return sign(v.Patch - other.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// CompatibleWith reports whether a consumer at version v can read a message
// at required: same major line, and v is not behind required.
func (v Version) CompatibleWith(required Version) bool {
	return v.Major == required.Major && v.Compare(required) >= 0
}
