// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Build is the structured form of the version information, as printed
// by "casc version --format".
type Build struct {
	Version   string `json:"version" yaml:"version" cbor:"version"`
	Commit    string `json:"commit" yaml:"commit" cbor:"commit"`
	Dirty     bool   `json:"dirty" yaml:"dirty" cbor:"dirty"`
	BuildTime string `json:"build_time" yaml:"build_time" cbor:"build_time"`
	Go        string `json:"go" yaml:"go" cbor:"go"`
	Platform  string `json:"platform" yaml:"platform" cbor:"platform"`
}

// Current returns the running binary's build information. Linker
// values win; the embedded VCS stamp fills whatever was not injected.
func Current() Build {
	build := Build{
		Version:   Version,
		Commit:    GitCommit,
		Dirty:     GitDirty == "true",
		BuildTime: BuildTime,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return build
	}
	return build.withSettings(info.Settings)
}

func (b Build) withSettings(settings []debug.BuildSetting) Build {
	injected := b.Commit != "unknown"
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if !injected {
				b.Commit = shortRevision(setting.Value)
			}
		case "vcs.modified":
			if !injected {
				b.Dirty = setting.Value == "true"
			}
		case "vcs.time":
			if b.BuildTime == "unknown" {
				b.BuildTime = setting.Value
			}
		}
	}
	return b
}

func shortRevision(revision string) string {
	if len(revision) > 12 {
		return revision[:12]
	}
	return revision
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return Current().String()
}

func (b Build) String() string {
	dirty := ""
	if b.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", b.Version, b.Commit, dirty, b.BuildTime)
}

// Full returns detailed version information including Go version.
func Full() string {
	build := Current()
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s", build, build.Go, build.Platform)
}

// Short returns just the version number.
func Short() string {
	return Version
}
