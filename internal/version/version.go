// Package version reports the build identity of the nodelink binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/nodelink/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/nodelink/internal/version.Commit=abc1234"
var (
	Version = ""
	Commit  = ""
)

// Info is the resolved build identity.
type Info struct {
	Version   string
	Commit    string
	Dirty     bool
	GoVersion string
}

// Get resolves the build identity from ldflags, falling back to the VCS
// stamp the toolchain embeds in module builds.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = fromBuildInfo(info, bi)
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	return info
}

func fromBuildInfo(info Info, bi *debug.BuildInfo) Info {
	var revision, vcsTime string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			vcsTime = s.Value
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}

	if info.Commit == "" && revision != "" {
		if len(revision) > 7 {
			revision = revision[:7]
		}
		info.Commit = revision
	}
	if info.Version == "" {
		switch {
		case bi.Main.Version != "" && bi.Main.Version != "(devel)":
			info.Version = bi.Main.Version
		case len(vcsTime) >= 10:
			// RFC 3339 date part
			info.Version = "dev-" + strings.ReplaceAll(vcsTime[:10], "-", "")
		}
	}
	return info
}

// String formats the identity for a --version line of the named binary.
func (i Info) String(binary string) string {
	commit := i.Commit
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s %s (commit: %s, %s)", binary, i.Version, commit, i.GoVersion)
}

// Full returns the version line for binary.
func Full(binary string) string {
	return Get().String(binary)
}
