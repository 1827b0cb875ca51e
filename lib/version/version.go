// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags at build time.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

var readBuildInfo = debug.ReadBuildInfo

// Info returns the one-line version string.
func Info() string {
	commit, dirty, built := stamp()
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, commit, suffix, built)
}

// Full adds the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// stamp prefers ldflags values and falls back to the toolchain's VCS
// settings.
func stamp() (commit string, dirty bool, built string) {
	commit, dirty, built = GitCommit, GitDirty == "true", BuildTime
	if commit != "unknown" {
		return commit, dirty, built
	}
	info, ok := readBuildInfo()
	if !ok {
		return commit, dirty, built
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		case "vcs.time":
			if built == "unknown" {
				built = setting.Value
			}
		}
	}
	return commit, dirty, built
}
