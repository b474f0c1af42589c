package utils

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "api to s3", DisplayName("api_to_s3"))
}

func TestOutputManagerRunDirs(t *testing.T) {
	om := NewOutputManager(t.TempDir())

	path, err := om.GetFilePath("run-1", "../../users.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(om.BaseOutputDir, "run-1", "users.csv"), path)

	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	size, err := om.GetFileSize(path)
	require.NoError(t, err)
	assert.EqualValues(t, 3, size)

	require.NoError(t, om.Cleanup("run-1"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNewOutputManagerDefaultsToTempDir(t *testing.T) {
	om := NewOutputManager("")
	assert.Equal(t, filepath.Join(os.TempDir(), "etl-spool"), om.BaseOutputDir)
}
