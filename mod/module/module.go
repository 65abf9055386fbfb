// Package module defines the module.Version type along with support code.
package module

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// A Version (for clients, a module.Version) represents a specific version
// of an upstream project identified by its path.
type Version struct {
	Path    string // Upstream path in the form "owner/repo"
	Version string // Upstream release tag (e.g., "7.0.8-10")
}

// String returns "path@version".
func (v Version) String() string {
	return v.Path + "@" + v.Version
}

// Major returns the major version number of v.
//
// ImageMagick tags such as "7.0.8-10" are valid semver once prefixed with
// "v": the patch level after the dash parses as a prerelease.
func (v Version) Major() (int, error) {
	canonical := v.Version
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		return 0, fmt.Errorf("invalid version %q of %s", v.Version, v.Path)
	}
	return strconv.Atoi(strings.TrimPrefix(semver.Major(canonical), "v"))
}

// EscapePath returns the escaped form of the given module path as a valid
// file system path. It fails if the module path is invalid.
func EscapePath(path string) (escaped string, err error) {
	return filepath.Localize(path)
}
