package logging

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger(Config{Level: "debug"}, "pricewatch")
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	logger = NewLogger(Config{Level: "not-a-level"}, "")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel(), "无法解析的级别应回退到 info")
}

func TestLogWriterSelection(t *testing.T) {
	assert.Equal(t, os.Stdout, logWriter(Config{}))
	assert.Equal(t, os.Stderr, logWriter(Config{Output: "stderr"}))

	console, ok := logWriter(Config{Format: "console", Output: "stderr"}).(zerolog.ConsoleWriter)
	if assert.True(t, ok) {
		assert.Equal(t, os.Stderr, console.Out)
	}
}
