package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go-etl-pipeline/internal/model"
	"go-etl-pipeline/internal/objectstore"
)

// Aggregate recomputes the regional summary over the whole users table and
// publishes it under the year of the loaded date. The aggregate is not
// restricted to that year; the key is only named after it.
func (s *Stages) Aggregate(ctx context.Context, in StageInput) (map[string]string, error) {
	raw, err := in.Value(KeyLoadDate)
	if err != nil {
		return nil, model.DataFormat("aggregate input", err)
	}
	date, err := model.ParseLogicalDate(raw)
	if err != nil {
		return nil, model.DataFormat("aggregate input", err)
	}

	ref := objectstore.AggregateRef(s.Bucket, date.Year())
	local, err := s.Spool.GetFilePath(in.RunID, fmt.Sprintf("users_agg_by_region_%d.csv", date.Year()))
	if err != nil {
		return nil, model.TransientIO("spool", err)
	}

	f, err := os.Create(local)
	if err != nil {
		return nil, model.TransientIO("spool", err)
	}
	groups, err := s.Warehouse.CopyAggregate(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = model.TransientIO("spool", cerr)
	}
	if err != nil {
		return nil, err
	}

	if err := s.upload(ctx, ref, local); err != nil {
		return nil, err
	}

	stageRows.WithLabelValues(string(model.StageAggregate)).Add(float64(groups))
	slog.InfoContext(ctx, "aggregate published",
		"run_id", in.RunID, "year", date.Year(), "groups", groups, "object", ref.URL())

	return map[string]string{KeyAggregatePath: ref.URL()}, nil
}
