// Package version exposes build metadata injected by the linker:
//
//	go build -ldflags "-X github.com/rickgao/whiteboard-relay/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/whiteboard-relay/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/whiteboard-relay/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

// Set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata as reported by the relay's health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String returns a one-line summary for startup logs and -version output.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
