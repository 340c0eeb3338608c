package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hpungsan/adsift/internal/config"
	"github.com/hpungsan/adsift/internal/keywords"
)

// BuildKeywordsInput contains parameters for the BuildKeywords operation.
type BuildKeywordsInput struct {
	Sources []string // optional, each entry may hold several newline-separated URLs; default: config list_urls
	Mode    string   // optional, "tolerant" or "strict"; default: config fetch_mode
}

// BuildKeywordsOutput contains the result of the BuildKeywords operation.
type BuildKeywordsOutput struct {
	RunID      string                  `json:"run_id,omitempty"`
	Mode       keywords.Mode           `json:"mode"`
	Count      int                     `json:"count"`
	Keywords   []string                `json:"keywords"`
	Sources    []keywords.SourceReport `json:"sources"`
	DurationMS int64                   `json:"duration_ms"`
	Error      string                  `json:"error,omitempty"`
}

// BuildKeywords fetches the configured lists and returns the resulting keyword set.
// The run is recorded in database when one is given.
//
// A strict-mode failure is not an operation error: the output carries the empty set
// and the failure text, matching what the filter would run with.
func BuildKeywords(ctx context.Context, database *sql.DB, cfg *config.Config, input BuildKeywordsInput) (*BuildKeywordsOutput, error) {
	mode, err := resolveMode(cfg, input.Mode)
	if err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx)

	fetcher := NewFetcher(cfg, *log)
	res, buildErr := fetcher.Build(ctx, resolveSources(cfg, input.Sources), mode)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	runID, err := recordRun(ctx, database, res, buildErr)
	if err != nil {
		log.Warn().Err(err).Msg("failed to record fetch run")
	}

	out := &BuildKeywordsOutput{
		RunID:      runID,
		Mode:       mode,
		Count:      res.Set.Len(),
		Keywords:   res.Set.Words(),
		Sources:    res.Sources,
		DurationMS: res.Duration.Milliseconds(),
	}
	if out.Keywords == nil {
		out.Keywords = []string{}
	}
	if buildErr != nil {
		out.Error = buildErr.Error()
	}
	return out, nil
}

// CheckSourcesInput contains parameters for the CheckSources operation.
type CheckSourcesInput struct {
	Sources []string // optional; default: config list_urls
}

// SourceCheck is the validation result for one candidate.
type SourceCheck struct {
	Source string `json:"source"`
	Valid  bool   `json:"valid"`
	URL    string `json:"url,omitempty"` // set when the fetched URL differs from Source
}

// CheckSourcesOutput contains the result of the CheckSources operation.
type CheckSourcesOutput struct {
	Sources []SourceCheck `json:"sources"`
	Valid   int           `json:"valid"`
	Invalid int           `json:"invalid"`
}

// CheckSources reports which candidates would be fetched, without fetching them.
func CheckSources(cfg *config.Config, input CheckSourcesInput) *CheckSourcesOutput {
	out := &CheckSourcesOutput{Sources: []SourceCheck{}}
	for _, s := range resolveSources(cfg, input.Sources) {
		target, ok := keywords.NormalizeSource(s)
		check := SourceCheck{Source: s, Valid: ok}
		if ok && target != strings.TrimSpace(s) {
			check.URL = target
		}
		out.Sources = append(out.Sources, check)
		if ok {
			out.Valid++
		} else {
			out.Invalid++
		}
	}
	return out
}
