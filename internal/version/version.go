// Package version exposes the clawmate release version embedded from
// the VERSION file, shared by the CLI and the health endpoint.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the release version with surrounding whitespace trimmed.
func Get() string {
	return strings.TrimSpace(raw)
}
