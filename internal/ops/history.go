package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/adsift/internal/db"
	"github.com/hpungsan/adsift/internal/errors"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Status string // optional, "ok" or "failed"
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Items      []db.Run   `json:"items"`
	Pagination Pagination `json:"pagination"`
	Sort       string     `json:"sort"`
}

// History lists recorded fetch runs, newest first.
func History(ctx context.Context, database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	status := strings.ToLower(strings.TrimSpace(input.Status))
	if status != "" && status != db.RunOK && status != db.RunFailed {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("status must be %q or %q", db.RunOK, db.RunFailed))
	}

	limit := clampLimit(input.Limit, DefaultHistoryLimit, MaxHistoryLimit)
	offset := max(input.Offset, 0)

	runs, total, err := db.ListRuns(ctx, database, status, limit, offset)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if runs == nil {
		runs = []db.Run{}
	}

	return &HistoryOutput{
		Items: runs,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(runs) < total,
			Total:   total,
		},
		Sort: "started_at_desc",
	}, nil
}

// FetchRunInput contains parameters for the FetchRun operation.
type FetchRunInput struct {
	ID     string
	Latest bool // fetch the most recent run instead of ID
}

// FetchRun retrieves one run with its per-source reports.
func FetchRun(ctx context.Context, database *sql.DB, input FetchRunInput) (*db.Run, error) {
	id := strings.TrimSpace(input.ID)
	if input.Latest {
		if id != "" {
			return nil, errors.NewInvalidRequest("specify either id or latest, not both")
		}
		return db.LatestRun(ctx, database)
	}
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetRun(ctx, database, id)
}

// PurgeHistoryInput contains parameters for the PurgeHistory operation.
type PurgeHistoryInput struct {
	OlderThanDays int // required, > 0
}

// PurgeHistoryOutput contains the result of the PurgeHistory operation.
type PurgeHistoryOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// PurgeHistory deletes runs older than the given number of days.
func PurgeHistory(ctx context.Context, database *sql.DB, input PurgeHistoryInput) (*PurgeHistoryOutput, error) {
	if input.OlderThanDays <= 0 {
		return nil, errors.NewInvalidRequest("older_than_days must be positive")
	}
	cutoff := time.Now().Add(-time.Duration(input.OlderThanDays) * 24 * time.Hour).Unix()

	count, err := db.PurgeRuns(ctx, database, cutoff)
	if err != nil {
		return nil, err
	}

	return &PurgeHistoryOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count, days int) string {
	if count == 0 {
		return "No fetch runs to purge"
	}
	runWord := "run"
	if count > 1 {
		runWord = "runs"
	}
	return fmt.Sprintf("Deleted %d fetch %s older than %d days", count, runWord, days)
}
