package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hpungsan/adsift/internal/classify"
	"github.com/hpungsan/adsift/internal/config"
	"github.com/hpungsan/adsift/internal/dom"
	"github.com/hpungsan/adsift/internal/errors"
	"github.com/hpungsan/adsift/internal/keywords"
	"github.com/hpungsan/adsift/internal/markup"
	"github.com/hpungsan/adsift/internal/observe"
)

// MaxFilterBytes bounds the page accepted by Filter.
const MaxFilterBytes = 8 << 20

// FilterInput contains parameters for the Filter operation.
type FilterInput struct {
	HTML     string        // required, a full page or a fragment
	BaseURL  string        // optional, resolves relative link targets
	Keywords []string      // optional, use these instead of fetching lists
	Set      *keywords.Set // optional, an already built set; takes precedence over Keywords
	Sources  []string      // optional; default: config list_urls (ignored when Keywords is set)
	Mode     string        // optional; default: config fetch_mode
}

// FilteredNode describes one classified message container.
type FilteredNode struct {
	ID      string         `json:"id,omitempty"`
	State   classify.State `json:"state"`
	Keyword string         `json:"keyword,omitempty"`
}

// FilterOutput contains the result of the Filter operation.
type FilterOutput struct {
	HTML       string         `json:"html"`
	RunID      string         `json:"run_id,omitempty"`
	Keywords   int            `json:"keywords"`
	Stats      observe.Stats  `json:"stats"`
	Nodes      []FilteredNode `json:"nodes"`
	FetchError string         `json:"fetch_error,omitempty"`
}

// Filter classifies every message container on a page and returns the annotated
// page with the stylesheet injected. The body content is replayed as one bulk
// insertion under an observer, the same path a live page takes.
func Filter(ctx context.Context, database *sql.DB, cfg *config.Config, input FilterInput) (*FilterOutput, error) {
	if strings.TrimSpace(input.HTML) == "" {
		return nil, errors.NewInvalidRequest("html is required")
	}
	if len(input.HTML) > MaxFilterBytes {
		return nil, errors.NewInvalidRequest("html exceeds the size limit")
	}
	log := *zerolog.Ctx(ctx)

	doc, content, err := dom.ParseShell(strings.NewReader(input.HTML))
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if err := doc.SetBaseURL(input.BaseURL); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	out := &FilterOutput{Nodes: []FilteredNode{}}
	holder := keywords.NewHolder()
	switch {
	case input.Set != nil:
		holder.Publish(input.Set, nil)
	case len(input.Keywords) > 0:
		holder.Publish(keywords.NewSet(input.Keywords...), nil)
	default:
		mode, err := resolveMode(cfg, input.Mode)
		if err != nil {
			return nil, err
		}
		loader := keywords.NewLoader(NewFetcher(cfg, log), holder, nil, log)
		res, buildErr := loader.Reload(ctx, resolveSources(cfg, input.Sources), mode)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if buildErr != nil {
			out.FetchError = buildErr.Error()
		}
		if out.RunID, err = recordRun(ctx, database, res, buildErr); err != nil {
			log.Warn().Err(err).Msg("failed to record fetch run")
		}
	}
	out.Keywords = holder.Set().Len()

	observer := observe.New(classify.New(log), holder, log)
	observer.OnOutcome(func(o observe.Outcome) {
		id, _ := o.Node.Attr("id")
		out.Nodes = append(out.Nodes, FilteredNode{ID: id, State: o.Outcome.State, Keyword: o.Outcome.Keyword})
	})

	doc.InjectStyle(markup.StyleID, markup.Stylesheet)
	body := doc.Body()
	if err := observer.Attach(doc, body); err != nil {
		return nil, errors.NewInternal(err)
	}
	for _, n := range content {
		doc.AppendChild(body, n)
	}
	doc.Flush()
	observer.Detach()

	var b strings.Builder
	if err := doc.Render(&b); err != nil {
		return nil, errors.NewInternal(err)
	}
	out.HTML = b.String()
	out.Stats = observer.Stats()
	return out, nil
}
