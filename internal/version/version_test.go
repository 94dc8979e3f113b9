package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildVarsInitialized(t *testing.T) {
	// Without ldflags every variable keeps its "unknown" placeholder.
	for name, v := range map[string]string{"Version": Version, "BuildTime": BuildTime, "GitCommit": GitCommit} {
		assert.NotEmpty(t, v, name)
	}
}
