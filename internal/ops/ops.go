package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/hpungsan/adsift/internal/config"
	"github.com/hpungsan/adsift/internal/keywords"
)

// Pagination limits
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// NewFetcher builds a list fetcher from config.
func NewFetcher(cfg *config.Config, log zerolog.Logger) *keywords.Fetcher {
	return keywords.NewFetcher(&http.Client{}, log, cfg.MaxListBytes, cfg.FetchTimeout())
}

// resolveSources returns explicit sources when given, otherwise the configured block.
func resolveSources(cfg *config.Config, sources []string) []string {
	if len(sources) > 0 {
		var out []string
		for _, s := range sources {
			out = append(out, keywords.ParseSources(s)...)
		}
		return out
	}
	return keywords.ParseSources(cfg.ListURLs)
}

// resolveMode returns the explicit mode when given, otherwise the configured one.
func resolveMode(cfg *config.Config, mode string) (keywords.Mode, error) {
	if mode == "" {
		mode = cfg.FetchMode
	}
	return keywords.ParseMode(mode)
}

// clampLimit applies limit defaults and bounds.
func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewLoader returns a loader publishing to a fresh holder. Builds are recorded in
// database when it is non-nil.
func NewLoader(database *sql.DB, cfg *config.Config, log zerolog.Logger) *keywords.Loader {
	var recorder keywords.Recorder
	if database != nil {
		recorder = &HistoryRecorder{DB: database}
	}
	return keywords.NewLoader(NewFetcher(cfg, log), keywords.NewHolder(), recorder, log)
}

// ReloadKeywords rebuilds the loader's set from cfg's sources and fetch mode.
func ReloadKeywords(ctx context.Context, loader *keywords.Loader, cfg *config.Config) (*keywords.Result, error) {
	mode, err := resolveMode(cfg, "")
	if err != nil {
		return nil, err
	}
	return loader.Reload(ctx, resolveSources(cfg, nil), mode)
}
