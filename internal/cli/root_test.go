package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootRegistersCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"run", "check", "show", "set-thresholds", "simulate-alert", "replay", "chart", "version"} {
		assert.True(t, names[want], "缺少子命令 %s", want)
	}
	assert.Contains(t, runCmd.Long, "/set")
}
