// Package version carries build identity. The variables are set with
// -ldflags -X at release time; anything left unset is filled from the VCS
// stamps the go toolchain embeds.
package version

import (
	"fmt"
	"runtime/debug"
)

// AppName names the service in logs, metrics, traces and profiles.
const AppName = "reqchain"

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

// Get returns the linked values merged with the embedded build info.
func Get() Info {
	in := Info{
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
		return in
	}
	return merge(in, bi.GoVersion, bi.Settings)
}

// merge fills the gaps in in from toolchain build settings. Linked values
// win, except the Go version and commit date, which the toolchain knows
// better.
func merge(in Info, goVersion string, settings []debug.BuildSetting) Info {
	if goVersion != "" {
		in.GoVersion = goVersion
	}
	for _, s := range settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if in.Commit == "none" || in.Commit == "" {
				in.Commit = s.Value
			}
		case "vcs.time":
			in.CommitDate = s.Value
			if in.BuildDate == "" {
				in.BuildDate = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" || s.Value == "false" {
				dirty := s.Value == "true"
				in.VCSDirty = &dirty
			}
		}
	}
	return in
}

// Dirty reports a modified working tree. Unknown counts as clean.
func (i Info) Dirty() bool { return i.VCSDirty != nil && *i.VCSDirty }

// String is the one-line form printed by -V.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%t)",
		AppName, i.Version, i.Commit, i.CommitDate, i.BuildId, i.BuildDate, i.GoVersion, i.Dirty())
}
