// Package notify delivers the terminal-failure alert of a pipeline run.
// Delivery is best effort: callers log a failed Notify and move on.
package notify

import (
	"context"
	_ "embed"
	"fmt"
	"html"
	"log/slog"
	"os"
	"strings"

	"go-etl-pipeline/internal/model"
	"go-etl-pipeline/pkg/utils"
)

//go:embed assets/alert.png
var defaultImage []byte

const defaultImageName = "alert.png"

// Alert names the failed task of one run.
type Alert struct {
	RunID       string        `json:"run_id"`
	Pipeline    string        `json:"pipeline"`
	Stage       model.StageID `json:"stage"`
	Task        string        `json:"task"`
	LogicalDate string        `json:"logical_date"`
}

// TaskDisplay is the task name with separators turned into spaces.
func (a Alert) TaskDisplay() string {
	return utils.DisplayName(a.Task)
}

// Text renders the HTML message body.
func (a Alert) Text() string {
	return fmt.Sprintf("Task failed: <b><u>%s</u></b> on dag <b><u>%s</u></b>  <b>%s</b>\nrun: <code>%s</code>",
		html.EscapeString(a.TaskDisplay()),
		html.EscapeString(a.Pipeline),
		html.EscapeString(a.LogicalDate),
		html.EscapeString(a.RunID),
	)
}

// Notifier sends one alert to one destination.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Image is the picture attached to every alert.
type Image struct {
	Name string
	Data []byte
}

// LoadImage reads the alert picture from path, or returns the built-in one
// when path is empty.
func LoadImage(path string) (Image, error) {
	if path == "" {
		return Image{Name: defaultImageName, Data: defaultImage}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("notify: read alert image: %w", err)
	}
	name := path
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		name = path[i+1:]
	}
	return Image{Name: name, Data: data}, nil
}

// Log writes alerts to the structured log. Used when no channel is configured.
type Log struct{}

func (Log) Notify(ctx context.Context, alert Alert) error {
	slog.ErrorContext(ctx, "pipeline task failed",
		"run_id", alert.RunID,
		"pipeline", alert.Pipeline,
		"stage", alert.Stage,
		"task", alert.TaskDisplay(),
		"logical_date", alert.LogicalDate)
	return nil
}
