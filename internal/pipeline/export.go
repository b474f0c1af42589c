package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go-etl-pipeline/internal/model"
)

// WriteUsersCSV writes a header row followed by one row per record.
func WriteUsersCSV(w io.Writer, users []model.UserRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(model.UserColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, u := range users {
		if err := writer.Write(u.Row()); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// exportUsers writes the snapshot file, replacing any previous attempt's.
func exportUsers(path string, users []model.UserRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteUsersCSV(file, users); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
