package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringIncludesBuildMetadata(t *testing.T) {
	Version, Commit = "v1.2.3", "abc123"
	defer func() { Version, Commit = "dev", "unknown" }()

	got := String()
	assert.Contains(t, got, "pricewatch v1.2.3")
	assert.Contains(t, got, "commit abc123")
}
