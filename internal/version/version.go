// Package version holds build metadata stamped in with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/fmp-data/internal/version.Version=$(git describe --tags) \
//	                   -X github.com/rickgao/fmp-data/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/fmp-data/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/ingester
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "version (commit) built time".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent is sent with every provider request.
func UserAgent() string {
	return "fmp-data/" + Version + " (+" + Commit + ")"
}
