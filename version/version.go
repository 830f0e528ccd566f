// Package version implements the four-part plugin version used in
// declarations and dependency requests.
package version

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Version is a plugin version. Versions are totally ordered field by field.
type Version struct {
	Major   int
	Minor   int
	Release int
	Build   int
}

// New returns the version major.minor.release.build.
func New(major, minor, release, build int) Version {
	return Version{Major: major, Minor: minor, Release: release, Build: build}
}

// Parse reads "1", "1.2", "1.2.3" or "1.2.3.4". A leading "v" is accepted.
// Missing trailing fields are zero. Pre-release and build metadata suffixes
// are rejected; a plugin version is numeric only.
func Parse(s string) (Version, error) {
	gv, err := goversion.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	if gv.Prerelease() != "" || gv.Metadata() != "" {
		return Version{}, fmt.Errorf("invalid version %q: suffixes are not allowed", s)
	}
	segs := gv.Segments64()
	if len(segs) > 4 {
		return Version{}, fmt.Errorf("invalid version %q: more than four fields", s)
	}
	var fields [4]int
	for i, n := range segs {
		fields[i] = int(n)
	}
	return Version{Major: fields[0], Minor: fields[1], Release: fields[2], Build: fields[3]}, nil
}

// MustParse is like Parse but panics on error. Intended for declarations.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) semver() *goversion.Version {
	return goversion.Must(goversion.NewVersion(v.String()))
}

// Compare returns -1, 0 or +1.
func (v Version) Compare(o Version) int {
	return v.semver().Compare(o.semver())
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// IsZero reports whether all fields are zero.
func (v Version) IsZero() bool { return v == Version{} }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Release, v.Build)
}

// Satisfies reports whether a plugin at version current that is backwards
// compatible down to compat can serve a request for want, i.e.
// compat <= want <= current. A zero compat means only current itself.
func Satisfies(current, compat, want Version) bool {
	if compat.IsZero() || current.Less(compat) {
		compat = current
	}
	c, err := goversion.NewConstraint(fmt.Sprintf(">= %s, <= %s", compat, current))
	if err != nil {
		return false
	}
	return c.Check(want.semver())
}
