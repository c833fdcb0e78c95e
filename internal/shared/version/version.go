// Package version holds build metadata injected with -ldflags.
package version

import (
	"fmt"
	"strings"
)

// Set at build time:
//
//	-ldflags "-X github.com/micropaywall/paygate/internal/shared/version.Version=1.2.3"
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// Normalize ensures version string has "v" prefix.
// Examples: "1.2.3" -> "v1.2.3", "v1.2.3" -> "v1.2.3", "dev" -> "dev"
func Normalize(version string) string {
	version = strings.TrimSpace(version)
	if version == "" || version == "dev" {
		return version
	}
	if !strings.HasPrefix(version, "v") {
		return "v" + version
	}
	return version
}

// String renders the build metadata for the version command.
func String() string {
	s := Normalize(Version)
	if Commit != "" {
		s += fmt.Sprintf(" (%s)", Commit)
	}
	if BuildDate != "" {
		s += " built " + BuildDate
	}
	return s
}
