package dom

import (
	"fmt"

	"golang.org/x/net/html"
)

// MutationRecord describes one childList change: nodes added under Target.
type MutationRecord struct {
	Target     Node
	AddedNodes []Node
}

// Observation is a registered subtree observer.
type Observation struct {
	doc      *Document
	target   *html.Node
	callback func([]MutationRecord)
	pending  []MutationRecord
	active   bool
}

// Disconnect stops delivery and drops any undelivered records.
func (o *Observation) Disconnect() {
	o.active = false
	o.pending = nil
	obs := o.doc.observations[:0]
	for _, other := range o.doc.observations {
		if other != o {
			obs = append(obs, other)
		}
	}
	o.doc.observations = obs
}

// Observe registers callback for insertions anywhere in target's subtree
// (target included). Records are delivered in batches by Flush.
func (d *Document) Observe(target Node, callback func([]MutationRecord)) (*Observation, error) {
	h, ok := target.(*HTMLNode)
	if !ok || h == nil || h.doc != d {
		return nil, fmt.Errorf("observe: target does not belong to this document")
	}
	o := &Observation{doc: d, target: h.n, callback: callback, active: true}
	d.observations = append(d.observations, o)
	return o, nil
}

// AppendChild inserts child as the last child of parent.
func (d *Document) AppendChild(parent, child Node) {
	d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child under parent before ref (at the end when ref is nil)
// and queues a mutation record. A child that is already attached is left in place;
// the tree never moves or drops existing nodes.
func (d *Document) InsertBefore(parent, child, ref Node) {
	p, ok := parent.(*HTMLNode)
	if !ok || p == nil {
		return
	}
	c, ok := child.(*HTMLNode)
	if !ok || c == nil || c.n.Parent != nil {
		return
	}
	var r *html.Node
	if rn, ok := ref.(*HTMLNode); ok && rn != nil && rn.n.Parent == p.n {
		r = rn.n
	}
	p.n.InsertBefore(c.n, r)
	d.queue(MutationRecord{Target: p, AddedNodes: []Node{c}})
}

func (d *Document) queue(rec MutationRecord) {
	target := rec.Target.(*HTMLNode).n
	for _, o := range d.observations {
		if o.active && isInclusiveAncestor(o.target, target) {
			o.pending = append(o.pending, rec)
		}
	}
}

// Pending reports whether any observer has undelivered records.
func (d *Document) Pending() bool {
	for _, o := range d.observations {
		if len(o.pending) > 0 {
			return true
		}
	}
	return false
}

// Flush delivers queued records to their observers, one batch per observer, and
// repeats while callbacks keep producing new records. Returns the number of
// batches delivered.
func (d *Document) Flush() int {
	batches := 0
	for d.Pending() {
		for _, o := range append([]*Observation(nil), d.observations...) {
			if !o.active || len(o.pending) == 0 {
				continue
			}
			records := o.pending
			o.pending = nil
			o.callback(records)
			batches++
		}
	}
	return batches
}

func isInclusiveAncestor(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}
