package version

import (
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time using -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

const shortCommit = 7

// Info describes the running binary.
type Info struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit,omitempty"`
	GoVersion string    `json:"go_version,omitempty"`
	BuildTime time.Time `json:"build_time,omitzero"`
	Dirty     bool      `json:"dirty,omitempty"`
}

// Get returns the version of the running binary.
func Get() Info {
	info := Info{Version: Version, Commit: Commit}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fromBuildInfo(&info, bi)
	}
	if len(info.Commit) > shortCommit {
		info.Commit = info.Commit[:shortCommit]
	}
	return info
}

func fromBuildInfo(info *Info, bi *debug.BuildInfo) {
	info.GoVersion = bi.GoVersion
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				info.BuildTime = t
			}
		}
	}
}

// String returns e.g. "1.4.0 (3f2a9c1, dirty)".
func (i Info) String() string {
	var meta []string
	if i.Commit != "" {
		meta = append(meta, i.Commit)
	}
	if i.Dirty {
		meta = append(meta, "dirty")
	}
	if len(meta) == 0 {
		return i.Version
	}
	return i.Version + " (" + strings.Join(meta, ", ") + ")"
}

// UserAgent returns a User-Agent product token such as "restcall/1.4.0".
func (i Info) UserAgent(product string) string {
	return product + "/" + i.Version
}
