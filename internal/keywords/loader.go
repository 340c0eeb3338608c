package keywords

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Recorder receives every finished build, e.g. to keep a history of fetch runs.
// err is the build error, if any.
type Recorder interface {
	RecordBuild(ctx context.Context, res *Result, err error) error
}

// Loader rebuilds the keyword set and publishes it to a Holder.
type Loader struct {
	fetcher  *Fetcher
	holder   *Holder
	recorder Recorder
	log      zerolog.Logger
	group    singleflight.Group

	// started numbers builds in start order; published is the newest one that has
	// gone out. A build older than published finishes without publishing.
	started   atomic.Uint64
	mu        sync.Mutex
	published uint64

	// lastKey and epoch keep a request from joining a build that was started for it
	// before a different configuration was requested.
	lastKey string
	epoch   uint64
}

// NewLoader returns a Loader. recorder may be nil.
func NewLoader(fetcher *Fetcher, holder *Holder, recorder Recorder, log zerolog.Logger) *Loader {
	return &Loader{fetcher: fetcher, holder: holder, recorder: recorder, log: log}
}

// Holder returns the holder this loader publishes to.
func (l *Loader) Holder() *Holder { return l.holder }

// Reload builds a new set from candidates and publishes it. Back-to-back reloads for
// the same candidates and mode share one build (and the first caller's ctx).
//
// A strict-mode failure still publishes: the empty set goes out so classification
// can proceed with sponsored detection only, and the error is returned and logged.
// Nothing is published when ctx ends before the build finishes, or when a build that
// started later has already published.
func (l *Loader) Reload(ctx context.Context, candidates []string, mode Mode) (*Result, error) {
	v, err, _ := l.group.Do(l.flightKey(mode, candidates), func() (any, error) {
		gen := l.started.Add(1)
		res, err := l.fetcher.Build(ctx, candidates, mode)
		if l.recorder != nil {
			if recErr := l.recorder.RecordBuild(ctx, res, err); recErr != nil {
				l.log.Warn().Err(recErr).Msg("failed to record fetch run")
			}
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err != nil {
			l.log.Error().Err(err).Str("mode", string(mode)).
				Msg("keyword set build failed; keyword filtering disabled until next reload")
		}
		snap, ok := l.publish(gen, res)
		if !ok {
			l.log.Info().Uint64("build", gen).Msg("discarding keyword set from superseded build")
			return res, err
		}
		l.log.Info().
			Int("keywords", res.Set.Len()).
			Uint64("version", snap.Version).
			Dur("took", res.Duration).
			Msg("keyword set published")
		return res, err
	})
	res, _ := v.(*Result)
	return res, err
}

// publish hands res to the holder unless a newer build got there first.
func (l *Loader) publish(gen uint64, res *Result) (*Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen < l.published {
		return nil, false
	}
	l.published = gen
	return l.holder.Publish(res.Set, res.Sources), true
}

func (l *Loader) flightKey(mode Mode, candidates []string) string {
	key := string(mode) + "\x00" + strings.Join(candidates, "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	if key != l.lastKey {
		l.lastKey = key
		l.epoch++
	}
	return strconv.FormatUint(l.epoch, 10) + "\x00" + key
}
