package ops

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/hpungsan/adsift/internal/classify"
	"github.com/hpungsan/adsift/internal/config"
	"github.com/hpungsan/adsift/internal/dom"
	"github.com/hpungsan/adsift/internal/errors"
	"github.com/hpungsan/adsift/internal/keywords"
	"github.com/hpungsan/adsift/internal/observe"
	"github.com/hpungsan/adsift/internal/session"
)

// maxWatchLine bounds one command line on the watch stream.
const maxWatchLine = 8 << 20

// WatchInput contains parameters for the Watch operation.
type WatchInput struct {
	Page     string   // optional initial page; default: an empty document
	Root     string   // optional observed root selector; default: body
	BaseURL  string   // optional
	Keywords []string // optional, use these instead of fetching lists
	Sources  []string // optional; default: config list_urls
	Mode     string   // optional; default: config fetch_mode

	In  io.Reader // JSON-lines commands
	Out io.Writer // JSON-lines events

	// Reconfigure, when set, triggers a rebuild from each config received.
	Reconfigure <-chan *config.Config
}

// WatchCommand is one line of the input stream.
//
//	{"op":"insert","parent":"#chat","html":"<div class=\"bubble\">...</div>"}
//	{"op":"click","selector":"#m1 .advertisement"}
//	{"op":"reload"}
//	{"op":"render"}
//	{"op":"stats"}
type WatchCommand struct {
	Op       string `json:"op"`
	Parent   string `json:"parent,omitempty"`
	HTML     string `json:"html,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// WatchEvent is one line of the output stream.
type WatchEvent struct {
	Event    string          `json:"event"`
	ID       string          `json:"id,omitempty"`
	State    *classify.State `json:"state,omitempty"`
	Keyword  string          `json:"keyword,omitempty"`
	Keywords *int            `json:"keywords,omitempty"`
	HTML     string          `json:"html,omitempty"`
	Stats    *observe.Stats  `json:"stats,omitempty"`
	Pending  *int            `json:"pending,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Watch runs a live session driven by a JSON-lines command stream and reports
// every classification as it happens. Keywords load in the background; messages
// inserted before they arrive are classified once they do. Returns when In is
// exhausted (after the initial load has finished) or ctx ends.
func Watch(ctx context.Context, database *sql.DB, cfg *config.Config, input WatchInput) error {
	if input.In == nil || input.Out == nil {
		return errors.NewInvalidRequest("watch needs an input and an output stream")
	}
	mode, err := resolveMode(cfg, input.Mode)
	if err != nil {
		return err
	}
	log := *zerolog.Ctx(ctx)

	doc := dom.NewDocument()
	if strings.TrimSpace(input.Page) != "" {
		if doc, err = dom.Parse(strings.NewReader(input.Page)); err != nil {
			return errors.NewInvalidRequest(err.Error())
		}
	}
	if err := doc.SetBaseURL(input.BaseURL); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}

	loader := NewLoader(database, cfg, log)
	holder := loader.Holder()
	sess := session.New(doc, loader, log)

	var mu sync.Mutex
	enc := json.NewEncoder(input.Out)
	emit := func(ev WatchEvent) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(ev); err != nil {
			log.Warn().Err(err).Msg("failed to write watch event")
		}
	}

	sess.Observer().OnOutcome(func(o observe.Outcome) {
		id, _ := o.Node.Attr("id")
		state := o.Outcome.State
		emit(WatchEvent{Event: "classified", ID: id, State: &state, Keyword: o.Outcome.Keyword})
	})

	// Published before Start so the sweep of the initial page sees the set.
	if len(input.Keywords) > 0 {
		holder.Publish(keywords.NewSet(input.Keywords...), nil)
		n := holder.Set().Len()
		emit(WatchEvent{Event: "keywords", Keywords: &n})
	}
	if err := sess.Start(input.Root); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}

	runCtx, cancel := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = sess.Run(runCtx)
	}()
	var background sync.WaitGroup
	defer func() {
		cancel()
		background.Wait()
		<-loopDone
	}()

	reload := func(sources []string, mode keywords.Mode) {
		res, err := sess.Reload(runCtx, sources, mode)
		if runCtx.Err() != nil {
			return
		}
		ev := WatchEvent{Event: "keywords"}
		if res != nil {
			n := res.Set.Len()
			ev.Keywords = &n
		}
		if err != nil {
			ev.Error = err.Error()
		}
		emit(ev)
	}

	var initial sync.WaitGroup
	if len(input.Keywords) == 0 {
		sources := resolveSources(cfg, input.Sources)
		initial.Add(1)
		background.Add(1)
		go func() {
			defer background.Done()
			defer initial.Done()
			reload(sources, mode)
		}()
	}

	if input.Reconfigure != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case next, ok := <-input.Reconfigure:
					if !ok {
						return
					}
					nextMode, err := keywords.ParseMode(next.FetchMode)
					if err != nil {
						emit(WatchEvent{Event: "error", Error: err.Error()})
						continue
					}
					reload(keywords.ParseSources(next.ListURLs), nextMode)
				}
			}
		}()
	}

	scanner := bufio.NewScanner(input.In)
	scanner.Buffer(make([]byte, 0, 64*1024), maxWatchLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var cmd WatchCommand
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			emit(WatchEvent{Event: "error", Error: fmt.Sprintf("invalid command: %v", err)})
			continue
		}
		if err := runWatchCommand(runCtx, sess, cmd, emit, func() {
			reload(resolveSources(cfg, input.Sources), mode)
		}); err != nil {
			if runCtx.Err() != nil {
				return ctx.Err()
			}
			emit(WatchEvent{Event: "error", Error: err.Error()})
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("read commands: %v", err))
	}

	initial.Wait()
	stats, pending, err := sess.Stats(runCtx)
	if err != nil {
		return ctx.Err()
	}
	emit(WatchEvent{Event: "done", Stats: &stats, Pending: &pending})
	return nil
}

func runWatchCommand(ctx context.Context, sess *session.Session, cmd WatchCommand, emit func(WatchEvent), reload func()) error {
	switch cmd.Op {
	case "insert":
		parent := cmd.Parent
		if parent == "" {
			parent = session.DefaultRoot
		}
		return sess.Insert(ctx, parent, cmd.HTML)
	case "click":
		return sess.Click(ctx, cmd.Selector)
	case "reload":
		reload()
		return nil
	case "render":
		var b strings.Builder
		if err := sess.Render(ctx, &b); err != nil {
			return err
		}
		emit(WatchEvent{Event: "document", HTML: b.String()})
		return nil
	case "stats":
		stats, pending, err := sess.Stats(ctx)
		if err != nil {
			return err
		}
		emit(WatchEvent{Event: "stats", Stats: &stats, Pending: &pending})
		return nil
	}
	return fmt.Errorf("unknown op %q", cmd.Op)
}
