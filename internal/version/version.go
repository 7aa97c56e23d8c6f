// Package version holds build information set through -ldflags.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
)

func String() string {
	return fmt.Sprintf("afk-bridge %s (%s)", Version, Commit)
}
