// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Info returns the string printed by --version. A binary built without
// -ldflags reports the VCS stamp the Go toolchain embedded instead.
func Info() string {
	commit, dirty, built := GitCommit, GitDirty == "true", BuildTime
	if commit == "unknown" {
		if stamp, ok := vcsStamp(); ok {
			commit, dirty, built = stamp.revision, stamp.modified, stamp.time
		}
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, commit, suffix, built)
}

// Full returns Info plus the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns the version number alone.
func Short() string { return Version }

type stamp struct {
	revision string
	modified bool
	time     string
}

func vcsStamp() (stamp, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return stamp{}, false
	}
	var s stamp
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			s.revision = setting.Value
		case "vcs.modified":
			s.modified = setting.Value == "true"
		case "vcs.time":
			s.time = setting.Value
		}
	}
	if s.revision == "" {
		return stamp{}, false
	}
	if s.time == "" {
		s.time = "unknown"
	}
	return s, true
}
