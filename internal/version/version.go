// Package version holds the build information stamped into the binary.
package version

import (
	"fmt"

	"github.com/aatumaykin/ytharvest/internal/constants"
	"github.com/aatumaykin/ytharvest/internal/logger"
)

var (
	Version   = constants.DefaultVersion
	BuildTime = constants.DefaultBuildTime
	GitCommit = constants.DefaultGitCommit
	GoVersion = constants.DefaultGoVersion
)

// SetInfo overrides the build information. Empty values are ignored.
func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// Format returns the multi-line text printed by the version command.
func Format() string {
	return fmt.Sprintf("ytharvest - YouTube metadata harvester\nVersion: %s\nBuild Time: %s\nGit Commit: %s\nGo Version: %s\n",
		Version, BuildTime, GitCommit, GoVersion)
}

// Fields returns the build information as log fields.
func Fields() []logger.Field {
	return []logger.Field{
		{Key: "version", Value: Version},
		{Key: "git_commit", Value: GitCommit},
		{Key: "build_time", Value: BuildTime},
	}
}
