// Package version reports the build version of the binaries.
//
// The values are set at build time:
//
//	go build -ldflags "-X github.com/facturae-co/dian-gateway/app/internal/version.version=v1.2.0 \
//	  -X github.com/facturae-co/dian-gateway/app/internal/version.buildDate=2024-01-28T10:00:00Z \
//	  -X github.com/facturae-co/dian-gateway/app/internal/version.gitCommit=abc1234"
package version

import "runtime/debug"

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
}

// Get returns the build information. When the binary was built without ldflags the VCS
// settings recorded by the Go toolchain are used where available.
func Get() Info {
	info := Info{Version: version, BuildDate: buildDate, GitCommit: gitCommit}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" && len(s.Value) >= 7 {
				info.GitCommit = s.Value[:7]
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		}
	}
	return info
}
