// Package version holds build metadata injected via -ldflags, e.g.
//
//	go build -ldflags "-X github.com/bdobrica/Shigoto/common/version.Version=v0.3.1"
package version

var (
	// Version is the semantic version.
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
