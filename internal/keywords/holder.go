package keywords

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hpungsan/adsift/internal/metrics"
)

// Snapshot is one published keyword set. Snapshots are never modified; a rebuild
// publishes a new one.
type Snapshot struct {
	Set         *Set
	Version     uint64
	PublishedAt time.Time
	Sources     []SourceReport
}

// Holder owns the current keyword snapshot. Readers always see either nothing or a
// complete snapshot, never a partially built set.
type Holder struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	ready   chan struct{}
	once    sync.Once
}

// NewHolder returns a Holder that has not published yet.
func NewHolder() *Holder {
	return &Holder{ready: make(chan struct{})}
}

// Publish replaces the current snapshot. A nil set publishes an empty one.
func (h *Holder) Publish(set *Set, sources []SourceReport) *Snapshot {
	if set == nil {
		set = NewSet()
	}
	snap := &Snapshot{
		Set:         set,
		Version:     h.version.Add(1),
		PublishedAt: time.Now().UTC(),
		Sources:     sources,
	}
	h.current.Store(snap)
	metrics.KeywordsPublished.Set(float64(set.Len()))
	h.once.Do(func() { close(h.ready) })
	return snap
}

// Load returns the current snapshot, or nil before the first Publish.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Set returns the current keyword set, or nil before the first Publish.
func (h *Holder) Set() *Set {
	if snap := h.current.Load(); snap != nil {
		return snap.Set
	}
	return nil
}

// Ready is closed by the first Publish.
func (h *Holder) Ready() <-chan struct{} {
	return h.ready
}

// IsReady reports whether a snapshot has been published.
func (h *Holder) IsReady() bool {
	return h.current.Load() != nil
}
