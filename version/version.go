package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

var (
	// Set with -ldflags "-X github.com/dendrascience/circlefs/version.Version=..."
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info describes the running binary
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	Package string `json:"package"`
}

// buildSetting returns a value recorded by the go tool, or "" when the
// binary carries no build info.
func buildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	if key == "main.version" {
		if v := info.Main.Version; v != "(devel)" {
			return v
		}
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func pick(injected, unset, setting, fallback string) string {
	if injected != unset && injected != "" {
		return injected
	}
	if v := buildSetting(setting); v != "" {
		return v
	}
	return fallback
}

// GetVersion returns the version string, preferring the ldflags value
func GetVersion() string {
	return pick(Version, "dev", "main.version", "development")
}

// GetCommit returns the git commit hash
func GetCommit() string {
	return pick(Commit, "unknown", "vcs.revision", "unknown")
}

// GetBuildDate returns the commit or build date
func GetBuildDate() string {
	return pick(Date, "unknown", "vcs.time", "unknown")
}

// GetInfo returns complete version information
func GetInfo() Info {
	return Info{
		Version: GetVersion(),
		Commit:  GetCommit(),
		Date:    GetBuildDate(),
		Go:      runtime.Version(),
		Package: "circlefs",
	}
}

// GetFullVersion returns the version with a short commit and the date, when known
func GetFullVersion() string {
	return GetInfo().String()
}

// String formats i as "VERSION (COMMIT, built DATE)".
func (i Info) String() string {
	if i.Commit == "unknown" || len(i.Commit) <= 7 {
		return i.Version
	}
	if i.Date == "unknown" {
		return fmt.Sprintf("%s (%s)", i.Version, i.Commit[:7])
	}
	return fmt.Sprintf("%s (%s, built %s)", i.Version, i.Commit[:7], i.Date)
}

// PrintVersion writes human readable version information to w
func PrintVersion(w io.Writer, appName string) {
	info := GetInfo()
	fmt.Fprintf(w, "%s version %s\n", appName, info)
	fmt.Fprintf(w, "Commit: %s\n", info.Commit)
	fmt.Fprintf(w, "Build Date: %s\n", info.Date)
	fmt.Fprintf(w, "Go: %s\n", info.Go)
}
