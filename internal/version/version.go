// Package version exposes build metadata injected with -ldflags
// (-X github.com/keithlinneman/linnemanlabs-folio/internal/version.Version=...),
// falling back to the VCS stamp the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" && s.Value != "" {
				out.Commit = s.Value
			}
		case "vcs.time":
			if out.BuildDate == "" && s.Value != "" {
				out.BuildDate = s.Value
			}
			out.CommitDate = s.Value
		case "vcs.modified":
			if s.Value == "true" || s.Value == "false" {
				dirty := s.Value == "true"
				out.VCSDirty = &dirty
			}
		}
	}
	return out
}

// String is the one-line form printed by -version.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if i.VCSDirty != nil && *i.VCSDirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("folio %s (%s, %s)", i.Version, commit, i.GoVersion)
}

// LogFields returns key/value pairs for the startup log line.
func (i Info) LogFields() []any {
	return []any{
		"version", i.Version,
		"commit", i.Commit,
		"build_date", i.BuildDate,
		"go_version", i.GoVersion,
	}
}
