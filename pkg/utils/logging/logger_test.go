package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_WritesJSONFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := InitLogger("test", dir)
	require.NoError(t, err)

	logger.Debug("debug line")
	// Syncing a piped stdout fails; the file core writes through unbuffered
	_ = logger.Sync()

	matches, err := filepath.Glob(filepath.Join(dir, "test_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"debug line"`)
	assert.Contains(t, string(data), `"env":"test"`)
}

func TestInitLogger_RequiresEnv(t *testing.T) {
	_, err := InitLogger("", t.TempDir())
	assert.Error(t, err)
}
