package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path"
	"strconv"

	"go-etl-pipeline/internal/model"
	"go-etl-pipeline/internal/objectstore"
)

// Load bulk-appends the staged snapshot to the users table. It never
// deduplicates: loading the same date twice doubles its rows.
func (s *Stages) Load(ctx context.Context, in StageInput) (map[string]string, error) {
	artifact, err := in.Value(KeyArtifactPath)
	if err != nil {
		return nil, model.DataFormat("load input", err)
	}
	execDate, err := in.Value(KeyExtractDate)
	if err != nil {
		return nil, model.DataFormat("load input", err)
	}
	ref, err := objectstore.ParseURL(artifact)
	if err != nil {
		return nil, model.DataFormat("load input", err)
	}

	local, err := s.Spool.GetFilePath(in.RunID, "load_"+path.Base(ref.Key))
	if err != nil {
		return nil, model.TransientIO("spool", err)
	}
	if err := s.Store.GetFile(ctx, ref, local); err != nil {
		return nil, err
	}
	if err := s.Warehouse.EnsureUsersTable(ctx); err != nil {
		return nil, err
	}

	f, err := os.Open(local)
	if err != nil {
		return nil, model.TransientIO("spool", err)
	}
	defer f.Close()

	rows, err := s.Warehouse.CopyUsers(ctx, f)
	if err != nil {
		return nil, err
	}

	stageRows.WithLabelValues(string(model.StageLoad)).Add(float64(rows))
	slog.InfoContext(ctx, "snapshot loaded",
		"run_id", in.RunID, "logical_date", execDate, "object", ref.URL(), "rows", rows)

	return map[string]string{
		KeyLoadDate: execDate,
		KeyLoadRows: strconv.FormatInt(rows, 10),
	}, nil
}
