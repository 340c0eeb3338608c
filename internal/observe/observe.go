// Package observe drives the classifier over every subtree inserted into the
// observed part of a document.
package observe

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hpungsan/adsift/internal/classify"
	"github.com/hpungsan/adsift/internal/dom"
	"github.com/hpungsan/adsift/internal/keywords"
	"github.com/hpungsan/adsift/internal/metrics"
)

// Stats counts observer activity since creation.
type Stats struct {
	Batches   int `json:"batches"`
	Queued    int `json:"queued"`
	Visited   int `json:"visited"`
	Sponsored int `json:"sponsored"`
	Flagged   int `json:"flagged"`
	Clean     int `json:"clean"`
	Panics    int `json:"panics"`
}

// Outcome pairs a classified node with its result.
type Outcome struct {
	Node    dom.Node
	Outcome classify.Outcome
}

// Observer walks inserted subtrees and classifies every message container in them.
//
// Until the holder publishes its first keyword set, batches are queued instead of
// classified: a node classified against a partial set stays misclassified for good.
// Call Resume once the set is published.
//
// An Observer is driven from the goroutine that owns the document and is not safe
// for concurrent use.
type Observer struct {
	classifier *classify.Classifier
	holder     *keywords.Holder
	log        zerolog.Logger

	observation *dom.Observation
	queue       [][]dom.MutationRecord
	stats       Stats
	onOutcome   func(Outcome)
}

// New returns an Observer reading keywords from holder.
func New(classifier *classify.Classifier, holder *keywords.Holder, log zerolog.Logger) *Observer {
	return &Observer{classifier: classifier, holder: holder, log: log}
}

// OnOutcome registers fn to receive every non-skipped classification.
func (o *Observer) OnOutcome(fn func(Outcome)) {
	o.onOutcome = fn
}

// Attach starts observing root's subtree in doc. An Observer observes at most one
// root; attaching again moves it.
func (o *Observer) Attach(doc *dom.Document, root dom.Node) error {
	o.Detach()
	obs, err := doc.Observe(root, o.HandleBatch)
	if err != nil {
		return fmt.Errorf("attach observer: %w", err)
	}
	o.observation = obs
	return nil
}

// Detach stops observing. Queued batches are kept.
func (o *Observer) Detach() {
	if o.observation != nil {
		o.observation.Disconnect()
		o.observation = nil
	}
}

// HandleBatch is the mutation callback. It classifies the batch now if keywords
// are available and queues it otherwise.
func (o *Observer) HandleBatch(records []dom.MutationRecord) {
	if !o.holder.IsReady() {
		o.queue = append(o.queue, records)
		o.stats.Queued++
		metrics.QueuedBatches.Inc()
		o.log.Debug().Int("records", len(records)).Msg("keywords not ready; batch queued")
		return
	}
	o.Resume()
	o.process(records)
}

// Resume classifies queued batches in arrival order. It does nothing before the
// holder is ready. Returns the number of batches drained.
func (o *Observer) Resume() int {
	if !o.holder.IsReady() || len(o.queue) == 0 {
		return 0
	}
	queued := o.queue
	o.queue = nil
	for _, records := range queued {
		o.process(records)
	}
	o.log.Debug().Int("batches", len(queued)).Msg("drained queued batches")
	return len(queued)
}

// Pending returns the number of queued batches.
func (o *Observer) Pending() int { return len(o.queue) }

// Stats returns a copy of the counters.
func (o *Observer) Stats() Stats { return o.stats }

func (o *Observer) process(records []dom.MutationRecord) {
	o.stats.Batches++
	set := o.holder.Set()
	for _, rec := range records {
		for _, added := range rec.AddedNodes {
			o.walk(added, set)
		}
	}
}

// Sweep treats the elements already under root as one inserted batch: they are
// classified now, or queued with the other early batches when keywords are not ready.
func (o *Observer) Sweep(root dom.Node) {
	if root == nil {
		return
	}
	children := root.Children()
	if len(children) == 0 {
		return
	}
	o.HandleBatch([]dom.MutationRecord{{Target: root, AddedNodes: children}})
}

// walk is an iterative pre-order traversal; bulk history loads can nest deeply.
func (o *Observer) walk(root dom.Node, set *keywords.Set) {
	if root == nil || !root.IsElement() {
		return
	}
	stack := []dom.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		o.stats.Visited++
		o.classify(n, set)

		children := n.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// classify runs the classifier on one node. A panic is contained to that node.
func (o *Observer) classify(n dom.Node, set *keywords.Set) {
	defer func() {
		if r := recover(); r != nil {
			o.stats.Panics++
			metrics.ClassifyPanics.Inc()
			o.log.Error().Interface("panic", r).Msg("classification panicked; node skipped")
		}
	}()

	out := o.classifier.Classify(n, set)
	if out.Skipped {
		return
	}
	switch out.State {
	case classify.Sponsored:
		o.stats.Sponsored++
	case classify.KeywordFlagged:
		o.stats.Flagged++
	case classify.Clean:
		o.stats.Clean++
	}
	if o.onOutcome != nil {
		o.onOutcome(Outcome{Node: n, Outcome: out})
	}
}
