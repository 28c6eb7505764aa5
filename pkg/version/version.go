// Package version provides version information of the current binary. Usually
// the version information is set during build time but the package provides a
// fallback value as a default.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/anttikivi/semver"
)

// The default values for the version info variables that are overridden
// during build with -ldflags.
const (
	defaultBuildVersion = "0.0.0-dev"
	defaultBuildCommit  = "unknown"
)

// Version and build information, normally set during the build.
//
//nolint:gochecknoglobals
var (
	buildVersion = defaultBuildVersion
	buildCommit  = defaultBuildCommit
	buildTime    = ""
)

// parsed is the parsed semantic version of the binary.
var parsed *semver.Version //nolint:gochecknoglobals

func init() { //nolint:gochecknoinits
	v := buildVersion

	if v == defaultBuildVersion {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = strings.TrimPrefix(info.Main.Version, "v")
		}
	}

	parsed = semver.MustParse(v)
}

// BuildCommit returns the VCS commit SHA the binary was built from.
func BuildCommit() string {
	return buildCommit
}

// BuildTime returns the time the binary was built. It returns the zero time
// if the build did not record one.
func BuildTime() time.Time {
	if buildTime == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, buildTime)
	if err != nil {
		panic(fmt.Sprintf("failed to parse build time: %v", err))
	}

	return t
}

// Version returns the parsed semantic version of the binary.
func Version() *semver.Version {
	return parsed
}
