// Package version carries build metadata stamped in at link time:
//
//	go build -ldflags "\
//	  -X github.com/tradegate/tradegate/internal/version.Version=v1.0.0 \
//	  -X github.com/tradegate/tradegate/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/tradegate/tradegate/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Version also identifies the client to the gateway at login.
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns the full build identifier for --version output.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
