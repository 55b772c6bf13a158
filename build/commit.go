package build

// GitRevision and BuildTime are assigned via -ldflags at build time
// (e.g. -X github.com/starslab/stars/build.GitRevision=$(git rev-parse --short HEAD)).
// Both are empty in a plain `go build`.
var (
	// GitRevision is the git commit hash the binary was built from.
	GitRevision string
	// BuildTime is the date and time the binary was built.
	BuildTime string
)
