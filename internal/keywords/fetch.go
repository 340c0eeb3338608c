package keywords

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/adsift/internal/errors"
	"github.com/hpungsan/adsift/internal/metrics"
)

// Mode is the failure policy for a keyword set build.
type Mode string

const (
	// Tolerant unions every source that succeeds; failed sources contribute nothing.
	Tolerant Mode = "tolerant"
	// Strict aborts on the first failure and yields an empty set plus the error.
	Strict Mode = "strict"
)

// ParseMode maps a config value to a Mode. Empty selects Tolerant.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Tolerant:
		return Tolerant, nil
	case Strict:
		return Strict, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown fetch mode %q (want tolerant or strict)", s))
}

// SourceStatus is the outcome of one candidate location.
type SourceStatus string

const (
	StatusOK         SourceStatus = "ok"
	StatusInvalid    SourceStatus = "invalid"
	StatusFailed     SourceStatus = "failed"
	StatusBadPayload SourceStatus = "bad_payload"
	StatusSkipped    SourceStatus = "skipped"
)

// SourceReport describes one candidate of a build. Keywords counts the usable
// entries the source returned, before deduplication against other sources.
type SourceReport struct {
	Source     string       `json:"source"`
	Status     SourceStatus `json:"status"`
	Keywords   int          `json:"keywords"`
	Error      string       `json:"error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

// Result is a finished build. Set is never nil.
type Result struct {
	Mode      Mode
	Set       *Set
	Sources   []SourceReport
	StartedAt time.Time
	Duration  time.Duration
}

// maxParallelFetches bounds concurrent list requests in one build.
const maxParallelFetches = 8

// Fetcher retrieves blacklist sources over HTTP.
type Fetcher struct {
	client   *http.Client
	log      zerolog.Logger
	maxBytes int64
	timeout  time.Duration
}

// NewFetcher returns a Fetcher. maxBytes caps a single list body and timeout bounds
// a single request; zero disables either limit. A nil client uses http.DefaultClient.
func NewFetcher(client *http.Client, log zerolog.Logger, maxBytes int64, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, log: log, maxBytes: maxBytes, timeout: timeout}
}

// FetchList downloads one source and returns its normalized string entries.
// Non-string elements and entries that normalize to "" are dropped. Duplicates are
// kept; the Set collapses them.
func (f *Fetcher) FetchList(ctx context.Context, source string) ([]string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, errors.NewInvalidSource(source)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewFetchFailed(source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewFetchFailed(source, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.NewFetchFailed(source, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, errors.NewBadPayload(source, fmt.Sprintf("body exceeds %d bytes", f.maxBytes))
	}

	return decodeList(source, data)
}

func decodeList(source string, data []byte) ([]string, error) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.NewBadPayload(source, "body is not valid JSON")
	}
	items, ok := payload.([]any)
	if !ok {
		return nil, errors.NewBadPayload(source, fmt.Sprintf("top-level value is %s, not an array", jsonKind(payload)))
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if w := Normalize(s); w != "" {
			out = append(out, w)
		}
	}
	return out, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	default:
		return "a number"
	}
}

// Build resolves candidates into a keyword set. Invalid candidates are skipped in
// both modes. Accepted sources are fetched concurrently and unioned in candidate
// order, so the same inputs always give the same iteration order.
//
// In Tolerant mode the returned error is always nil unless ctx ends. In Strict mode
// any failure (or having no valid candidate at all) returns an empty set alongside
// the error; the reports still say which source failed.
func (f *Fetcher) Build(ctx context.Context, candidates []string, mode Mode) (*Result, error) {
	res := &Result{
		Mode:      mode,
		Sources:   make([]SourceReport, len(candidates)),
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		res.Duration = time.Since(res.StartedAt)
		metrics.ListFetchDuration.WithLabelValues(string(mode)).Observe(res.Duration.Seconds())
	}()

	lists := make([][]string, len(candidates))
	targets := make([]string, len(candidates))
	accepted := 0
	for i, c := range candidates {
		c = strings.TrimSpace(c)
		res.Sources[i].Source = c
		target, ok := NormalizeSource(c)
		if !ok {
			res.Sources[i].Status = StatusInvalid
			metrics.ListFetches.WithLabelValues(string(StatusInvalid)).Inc()
			f.log.Debug().Str("source", c).Msg("skipping invalid list source")
			continue
		}
		targets[i] = target
		accepted++
	}

	if accepted == 0 {
		res.Set = NewSet()
		if mode == Strict {
			return res, errors.NewNoSources()
		}
		f.log.Warn().Int("candidates", len(candidates)).Msg("no valid list sources; keyword set is empty")
		return res, nil
	}

	var g *errgroup.Group
	gctx := ctx
	if mode == Strict {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}
	g.SetLimit(maxParallelFetches)

	for i := range candidates {
		if res.Sources[i].Status == StatusInvalid {
			continue
		}
		c := res.Sources[i].Source
		target := targets[i]
		g.Go(func() error {
			start := time.Now()
			words, err := f.FetchList(gctx, target)
			report := &res.Sources[i]
			report.DurationMS = time.Since(start).Milliseconds()
			if err != nil {
				report.Status = statusFor(err, gctx, ctx)
				report.Error = err.Error()
				metrics.ListFetches.WithLabelValues(string(report.Status)).Inc()
				if report.Status != StatusSkipped {
					f.log.Warn().Err(err).Str("source", c).Msg("list source failed")
				}
				if mode == Strict {
					return err
				}
				return nil
			}
			lists[i] = words
			report.Status = StatusOK
			report.Keywords = len(words)
			metrics.ListFetches.WithLabelValues(string(StatusOK)).Inc()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		res.Set = NewSet()
		return res, err
	}

	set := NewSet()
	for _, words := range lists {
		for _, w := range words {
			set.add(w)
		}
	}
	res.Set = set
	return res, nil
}

// statusFor classifies a fetch error. A source cancelled because a sibling failed
// first (strict mode) is reported as skipped rather than failed.
func statusFor(err error, gctx, parent context.Context) SourceStatus {
	if errors.Is(err, errors.ErrBadPayload) {
		return StatusBadPayload
	}
	if gctx.Err() != nil && parent.Err() == nil {
		return StatusSkipped
	}
	return StatusFailed
}
