// Package buildconfig carries version identifiers stamped at build time
// through -ldflags. A plain `go build` reports a dev version with an
// unknown commit.
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

// Version is the semantic version of this build.
func Version() string {
	return version
}

// Commit is the short git hash the binary was built from.
func Commit() string {
	return commit
}

// VersionInfo bundles the identifiers for the /metrics endpoint.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
