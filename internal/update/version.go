package update

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion is returned for strings that are not MAJOR.MINOR.PATCH semantic versions.
var ErrInvalidVersion = errors.New("invalid semantic version")

// canonical turns "1.2.3-rc.1+build" or "v1.2.3" into the "v"-prefixed form
// golang.org/x/mod/semver understands. Shorthands like "1.2" are rejected.
func canonical(v string) (string, error) {
	s := strings.TrimSpace(v)
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	withoutBuild := s
	if i := strings.IndexByte(s, '+'); i >= 0 {
		withoutBuild = s[:i]
	}
	if semver.Canonical(s) != withoutBuild {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	return s, nil
}

// ValidateVersion reports whether v is a full semantic version.
func ValidateVersion(v string) error {
	_, err := canonical(v)
	return err
}

// CompareVersions orders a and b by semantic version precedence: -1, 0 or +1.
// Prerelease versions sort before the release they precede and build metadata
// is ignored.
func CompareVersions(a, b string) (int, error) {
	ca, err := canonical(a)
	if err != nil {
		return 0, err
	}
	cb, err := canonical(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(ca, cb), nil
}

// IsNewer reports whether candidate has higher precedence than current.
func IsNewer(candidate, current string) (bool, error) {
	c, err := CompareVersions(candidate, current)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
