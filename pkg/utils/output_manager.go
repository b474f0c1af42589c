package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// OutputManager owns the local spool where stages stage files before
// uploading them or after downloading them. Every run gets its own directory.
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	if baseOutputDir == "" {
		baseOutputDir = filepath.Join(os.TempDir(), "etl-spool")
	}
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// CreateRunDir creates the directory for a run's staged files
func (om *OutputManager) CreateRunDir(runID string) (string, error) {
	runDir := filepath.Join(om.BaseOutputDir, filepath.Base(runID))

	err := os.MkdirAll(runDir, 0o755)
	if err != nil {
		return "", fmt.Errorf("failed to create run spool directory: %w", err)
	}

	return runDir, nil
}

// GetFilePath generates a full path for a staged file of a run
func (om *OutputManager) GetFilePath(runID, fileName string) (string, error) {
	runDir, err := om.CreateRunDir(runID)
	if err != nil {
		return "", err
	}

	// Clean the filename to remove any path separators
	cleanFileName := filepath.Base(fileName)

	return filepath.Join(runDir, cleanFileName), nil
}

// Cleanup removes every staged file of a run
func (om *OutputManager) Cleanup(runID string) error {
	return os.RemoveAll(filepath.Join(om.BaseOutputDir, filepath.Base(runID)))
}

// GetFileSize returns the size of a file in bytes
func (om *OutputManager) GetFileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}
