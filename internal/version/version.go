package version

import (
	"fmt"
	"runtime/debug"
)

// Version values are set at build time using -ldflags.
var (
	Version   = "dev"
	GitCommit = ""
	Built     = ""
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	Built     string `json:"built,omitempty"`
}

// Get returns the linked version, falling back to VCS data embedded by the
// Go toolchain when no commit was injected.
func Get() Info {
	info := Info{Version: Version, GitCommit: GitCommit, Built: Built}
	if info.GitCommit != "" {
		return info
	}
	if build, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range build.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.GitCommit = setting.Value
			case "vcs.time":
				if info.Built == "" {
					info.Built = setting.Value
				}
			}
		}
	}
	return info
}

func (info Info) String() string {
	text := info.Version
	if info.GitCommit != "" {
		commit := info.GitCommit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		text += " (" + commit + ")"
	}
	if info.Built != "" {
		text += fmt.Sprintf(" built %s", info.Built)
	}
	return text
}
