package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/adsift/internal/db"
	"github.com/hpungsan/adsift/internal/errors"
	"github.com/hpungsan/adsift/internal/keywords"
)

// HistoryRecorder stores every keyword build as a fetch run.
type HistoryRecorder struct {
	DB *sql.DB
}

var _ keywords.Recorder = (*HistoryRecorder)(nil)

// RecordBuild implements keywords.Recorder.
func (r *HistoryRecorder) RecordBuild(ctx context.Context, res *keywords.Result, buildErr error) error {
	_, err := recordRun(ctx, r.DB, res, buildErr)
	return err
}

// recordRun converts a build result to a run row and inserts it. Returns the run ID.
func recordRun(ctx context.Context, database *sql.DB, res *keywords.Result, buildErr error) (string, error) {
	if database == nil || res == nil {
		return "", nil
	}
	id, err := generateULID()
	if err != nil {
		return "", errors.NewInternal(err)
	}

	run := &db.Run{
		ID:         id,
		Mode:       string(res.Mode),
		Status:     db.RunOK,
		Keywords:   res.Set.Len(),
		StartedAt:  res.StartedAt.Unix(),
		DurationMS: res.Duration.Milliseconds(),
	}
	if buildErr != nil {
		msg := buildErr.Error()
		run.Status = db.RunFailed
		run.Error = &msg
	}
	for i, s := range res.Sources {
		src := db.RunSource{
			Position:   i,
			Source:     s.Source,
			Status:     string(s.Status),
			Keywords:   s.Keywords,
			DurationMS: s.DurationMS,
		}
		if s.Error != "" {
			msg := s.Error
			src.Error = &msg
		}
		run.Sources = append(run.Sources, src)
	}

	// A cancelled build ctx must not lose the record of why it ended.
	if err := db.InsertRun(context.WithoutCancel(ctx), database, run); err != nil {
		return "", err
	}
	return id, nil
}
