package version

import (
	"fmt"
	"strings"
	"sync"
)

// buildCharacters lists the characters allowed in appBuild.
const buildCharacters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0
)

// appBuild can be set at link time with
// '-ldflags "-X github.com/kaspanet/p2pwire/version.appBuild=foo"'.
// A value containing characters outside buildCharacters is ignored.
var appBuild string

var (
	version     string
	versionOnce sync.Once
)

// Version returns the node's semantic version, with the build metadata
// appended when there is any.
func Version() string {
	versionOnce.Do(func() {
		version = formatVersion(appMajor, appMinor, appPatch, appBuild)
	})
	return version
}

func formatVersion(major, minor, patch uint, build string) string {
	formatted := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if build == "" || strings.Trim(build, buildCharacters) != "" {
		return formatted
	}
	return formatted + "+" + build
}
