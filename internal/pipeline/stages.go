package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go-etl-pipeline/internal/model"
	"go-etl-pipeline/internal/objectstore"
	"go-etl-pipeline/internal/warehouse"
	"go-etl-pipeline/pkg/utils"
)

// Task names as they appear in alerts and history.
const (
	TaskExtract   = "api_to_s3"
	TaskLoad      = "s3_to_postgres"
	TaskAggregate = "postgres_to_s3"
)

// Stages holds the collaborators of the three built-in stages.
type Stages struct {
	Source    Source
	Store     objectstore.Store
	Warehouse warehouse.Warehouse
	Spool     *utils.OutputManager
	Bucket    string
}

// Graph wires extract, load and aggregate in that order, each under policy.
func (s *Stages) Graph(policy model.RetryPolicy) (*TaskGraph, error) {
	return NewTaskGraph(
		Task{
			Stage:   model.StageExtract,
			Name:    TaskExtract,
			Run:     s.Extract,
			Policy:  policy,
			Outputs: []string{KeyArtifactPath, KeyExtractDate},
		},
		Task{
			Stage:   model.StageLoad,
			Name:    TaskLoad,
			Run:     s.Load,
			Policy:  policy,
			Inputs:  []string{KeyArtifactPath, KeyExtractDate},
			Outputs: []string{KeyLoadDate, KeyLoadRows},
		},
		Task{
			Stage:   model.StageAggregate,
			Name:    TaskAggregate,
			Run:     s.Aggregate,
			Policy:  policy,
			Inputs:  []string{KeyLoadDate},
			Outputs: []string{KeyAggregatePath},
		},
	)
}

// Extract pulls one batch from the source, normalizes it and stages it as
// the date's snapshot. Re-running a date overwrites the snapshot.
func (s *Stages) Extract(ctx context.Context, in StageInput) (map[string]string, error) {
	raw, err := s.Source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := ValidateRawUsers(raw); err != nil {
		return nil, err
	}
	users, err := TransformUsers(raw, in.LogicalDate)
	if err != nil {
		return nil, err
	}

	ref := objectstore.RawUsersRef(s.Bucket, in.LogicalDate)
	local, err := s.Spool.GetFilePath(in.RunID, fmt.Sprintf("users_%s.csv", in.LogicalDate))
	if err != nil {
		return nil, model.TransientIO("spool", err)
	}
	if err := exportUsers(local, users); err != nil {
		return nil, model.TransientIO("spool", err)
	}
	if err := s.upload(ctx, ref, local); err != nil {
		return nil, err
	}

	stageRows.WithLabelValues(string(model.StageExtract)).Add(float64(len(users)))
	slog.InfoContext(ctx, "snapshot staged",
		"run_id", in.RunID, "logical_date", in.LogicalDate.String(), "records", len(users), "object", ref.URL())

	return map[string]string{
		KeyArtifactPath: ref.URL(),
		KeyExtractDate:  in.LogicalDate.String(),
	}, nil
}

// upload publishes a spooled CSV, replacing whatever ref held before.
func (s *Stages) upload(ctx context.Context, ref objectstore.Ref, local string) error {
	size, err := s.Spool.GetFileSize(local)
	if err != nil {
		return model.TransientIO("spool", err)
	}
	if err := s.Store.PutFile(ctx, ref, local, objectstore.CSVContentType()); err != nil {
		return err
	}
	slog.DebugContext(ctx, "artifact uploaded", "object", ref.URL(), "bytes", size)
	return nil
}
