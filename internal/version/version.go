// SPDX-License-Identifier: MIT

// Package version carries the build metadata stamped in at link time.
package version

// Set via -ldflags "-X .../internal/version.Version=..." by the release
// build; the defaults only show up in local builds.
var (
	Version = "v1.2.0"
	Commit  = "unknown"
	Date    = "unknown"
)
