package core

import (
	"regexp"
	"strings"
)

// fingerprintCommand prints os-release where available and falls back to
// the kernel name.
const fingerprintCommand = "cat /etc/os-release 2>/dev/null || uname -s"

var (
	prettyNamePattern = regexp.MustCompile(`(?m)^PRETTY_NAME="?([^"\n]+)"?`)
	namePattern       = regexp.MustCompile(`(?m)^NAME="?([^"\n]+)"?`)
	versionPattern    = regexp.MustCompile(`(?m)^VERSION="?([^"\n]+)"?`)
	unamePattern      = regexp.MustCompile(`(Linux|Darwin|FreeBSD)`)
)

// ParseFingerprint extracts a human readable OS name from the probe output.
// It returns "" when nothing is recognized.
func ParseFingerprint(output string) string {
	if m := prettyNamePattern.FindStringSubmatch(output); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := namePattern.FindStringSubmatch(output); m != nil {
		name := strings.TrimSpace(m[1])
		if v := versionPattern.FindStringSubmatch(output); v != nil {
			name += " " + strings.TrimSpace(v[1])
		}
		return name
	}
	if m := unamePattern.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	return ""
}
