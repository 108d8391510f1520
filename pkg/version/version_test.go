package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	origVersion, origCommit, origBuildTime := Version, GitCommit, BuildTime
	defer func() {
		Version, GitCommit, BuildTime = origVersion, origCommit, origBuildTime
	}()

	Version = "1.2.3"
	GitCommit = "abc123def"
	BuildTime = "2024-01-15T10:30:00Z"

	result := String()
	assert.Contains(t, result, "crucible 1.2.3")
	assert.Contains(t, result, "commit: abc123def")
	assert.Contains(t, result, "built: 2024-01-15T10:30:00Z")
	assert.Contains(t, result, runtime.Version())
}

func TestInfo(t *testing.T) {
	origCommit := GitCommit
	defer func() { GitCommit = origCommit }()
	GitCommit = "abc123def"

	info := Info()
	assert.Equal(t, Version, info["version"])
	assert.Equal(t, "abc123def", info["commit"])
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info["platform"])
	assert.NotEmpty(t, info["goVersion"])
}
