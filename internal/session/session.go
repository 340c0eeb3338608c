// Package session runs a document, its observer and the keyword loader on a single
// event-loop goroutine, the way a page's UI thread would.
package session

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/hpungsan/adsift/internal/classify"
	"github.com/hpungsan/adsift/internal/dom"
	"github.com/hpungsan/adsift/internal/keywords"
	"github.com/hpungsan/adsift/internal/markup"
	"github.com/hpungsan/adsift/internal/observe"
)

// DefaultRoot is the subtree observed when no root selector is given.
const DefaultRoot = "body"

// Session owns a Document. Every access to the document happens inside an event on
// the loop started by Run; mutation records are flushed after each event.
type Session struct {
	doc      *dom.Document
	loader   *keywords.Loader
	observer *observe.Observer
	log      zerolog.Logger

	events chan func()
}

// New returns a Session over doc. Keywords come from loader's holder.
func New(doc *dom.Document, loader *keywords.Loader, log zerolog.Logger) *Session {
	return &Session{
		doc:      doc,
		loader:   loader,
		observer: observe.New(classify.New(log), loader.Holder(), log),
		log:      log,
		events:   make(chan func()),
	}
}

// Observer returns the session's observer, e.g. to register OnOutcome before Run.
func (s *Session) Observer() *observe.Observer { return s.observer }

// Start injects the stylesheet and begins observing the first element matching
// rootSelector (DefaultRoot when empty). Messages already under the root are swept
// as the first batch. Call it before Run.
func (s *Session) Start(rootSelector string) error {
	if rootSelector == "" {
		rootSelector = DefaultRoot
	}
	root := s.doc.Query(rootSelector)
	if root == nil {
		return fmt.Errorf("observe root %q not found", rootSelector)
	}
	if s.doc.InjectStyle(markup.StyleID, markup.Stylesheet) {
		s.doc.Flush()
	}
	if err := s.observer.Attach(s.doc, root); err != nil {
		return err
	}
	s.observer.Sweep(root)
	return nil
}

// Run executes posted events one at a time until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.observer.Detach()
			return nil
		case ev := <-s.events:
			ev()
			s.doc.Flush()
		}
	}
}

// Do runs fn on the loop and waits for it (and the flush after it) to finish.
func (s *Session) Do(ctx context.Context, fn func(doc *dom.Document)) error {
	done := make(chan struct{})
	ev := func() {
		defer close(done)
		fn(s.doc)
	}
	select {
	case s.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload rebuilds the keyword set off the loop, then resumes any batches that were
// queued while keywords were unavailable. The build error (strict mode) is returned
// after the empty set has been published and the queue drained.
func (s *Session) Reload(ctx context.Context, candidates []string, mode keywords.Mode) (*keywords.Result, error) {
	res, buildErr := s.loader.Reload(ctx, candidates, mode)
	if !s.loader.Holder().IsReady() {
		return res, buildErr
	}
	if err := s.Do(ctx, func(*dom.Document) { s.observer.Resume() }); err != nil {
		return res, err
	}
	return res, buildErr
}

// Insert parses markup and appends the resulting nodes under the first element
// matching parentSelector, as the host page would when rendering new messages.
func (s *Session) Insert(ctx context.Context, parentSelector, markupHTML string) error {
	var insertErr error
	err := s.Do(ctx, func(doc *dom.Document) {
		parent := doc.Query(parentSelector)
		if parent == nil {
			insertErr = fmt.Errorf("insert: no element matches %q", parentSelector)
			return
		}
		nodes, err := doc.ParseFragment(parent, markupHTML)
		if err != nil {
			insertErr = err
			return
		}
		for _, n := range nodes {
			doc.AppendChild(parent, n)
		}
	})
	if err != nil {
		return err
	}
	return insertErr
}

// Click dispatches a click on the first element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	var clickErr error
	err := s.Do(ctx, func(doc *dom.Document) {
		target := doc.Query(selector)
		if target == nil {
			clickErr = fmt.Errorf("click: no element matches %q", selector)
			return
		}
		doc.Dispatch(target, "click")
	})
	if err != nil {
		return err
	}
	return clickErr
}

// Render writes the current document.
func (s *Session) Render(ctx context.Context, w io.Writer) error {
	var renderErr error
	if err := s.Do(ctx, func(doc *dom.Document) { renderErr = doc.Render(w) }); err != nil {
		return err
	}
	return renderErr
}

// Stats returns the observer counters and the number of queued batches.
func (s *Session) Stats(ctx context.Context) (observe.Stats, int, error) {
	var stats observe.Stats
	var pending int
	err := s.Do(ctx, func(*dom.Document) {
		stats = s.observer.Stats()
		pending = s.observer.Pending()
	})
	return stats, pending, err
}
