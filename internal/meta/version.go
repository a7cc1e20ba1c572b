package meta

import (
	"fmt"
	"runtime"
)

// Info describes how a riakpb binary was built. Everything but the Go
// version and platform is set by the linker, see the vars below.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Build     string `json:"build" yaml:"build"`
	Branch    string `json:"branch" yaml:"branch"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	Platform  string `json:"platform" yaml:"platform"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	GoTag     string `json:"go_tag,omitempty" yaml:"go_tag,omitempty"`
}

// These will be filled in using the linker -X flag, e.g.
//
//	-ldflags "-X github.com/luma/riakpb/internal/meta.Version=1.2.0"
var (
	// Version as an arbitrary string
	Version = "dev"

	// Build is the Git sha from when we are building
	Build string

	// Branch is the Git branch that we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag is the Go build tags, see https://golang.org/pkg/go/build/#hdr-Build_Constraints
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		Platform:  platform,
	}
}
