package web

import (
	"database/sql"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/hpungsan/adsift/internal/config"
	"github.com/hpungsan/adsift/internal/db"
	"github.com/hpungsan/adsift/internal/errors"
	"github.com/hpungsan/adsift/internal/keywords"
	"github.com/hpungsan/adsift/internal/ops"
)

// Handlers contains HTTP route handlers.
type Handlers struct {
	db       *sql.DB
	cfg      atomic.Pointer[config.Config]
	loader   *keywords.Loader
	renderer *Renderer
	log      zerolog.Logger
}

// NewHandlers creates the route handlers. loader owns the live keyword set the
// status, keywords and filter routes read.
func NewHandlers(db *sql.DB, cfg *config.Config, loader *keywords.Loader, log zerolog.Logger, version string) *Handlers {
	h := &Handlers{
		db:       db,
		loader:   loader,
		renderer: NewRenderer(templates(), version, log),
		log:      log,
	}
	h.cfg.Store(cfg)
	return h
}

// Config returns the configuration requests currently run with.
func (h *Handlers) Config() *config.Config { return h.cfg.Load() }

// UpdateConfig swaps the configuration for subsequent requests.
func (h *Handlers) UpdateConfig(cfg *config.Config) {
	if cfg != nil {
		h.cfg.Store(cfg)
	}
}

// KeywordsResponse is the JSON view of the live keyword set.
type KeywordsResponse struct {
	Ready       bool                    `json:"ready"`
	Version     uint64                  `json:"version,omitempty"`
	PublishedAt *time.Time              `json:"published_at,omitempty"`
	Count       int                     `json:"count"`
	Keywords    []string                `json:"keywords"`
	Sources     []keywords.SourceReport `json:"sources,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

func keywordsResponse(snap *keywords.Snapshot) KeywordsResponse {
	resp := KeywordsResponse{Keywords: []string{}}
	if snap == nil {
		return resp
	}
	published := snap.PublishedAt
	resp.Ready = true
	resp.Version = snap.Version
	resp.PublishedAt = &published
	resp.Count = snap.Set.Len()
	if words := snap.Set.Words(); words != nil {
		resp.Keywords = words
	}
	resp.Sources = snap.Sources
	return resp
}

// FilterRequest is the JSON body of POST /filter.
type FilterRequest struct {
	HTML     string   `json:"html"`
	BaseURL  string   `json:"base_url,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// HandleStatus handles GET /: the live keyword state and the latest fetch run.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.loader.Holder().Load()

	latest, err := db.LatestRun(r.Context(), h.db)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"keywords":   keywordsResponse(snap),
			"latest_run": latest,
		})
		return
	}

	h.renderer.renderPage(w, "status", StatusPageData{
		PageData: PageData{
			Title:   "Status",
			Version: h.renderer.version,
			Nav:     "status",
		},
		Report: renderMarkdown(statusReport(snap, h.Config().FetchMode, latest)),
	})
}

// HandleKeywords handles GET /keywords: the live keyword set as JSON.
func (h *Handlers) HandleKeywords(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, keywordsResponse(h.loader.Holder().Load()))
}

// HandleRebuild handles POST /keywords/rebuild: refetch the configured lists and
// publish the result. A strict-mode failure publishes the empty set and reports
// the failure alongside it.
func (h *Handlers) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	ctx := h.log.WithContext(r.Context())
	_, err := ops.ReloadKeywords(ctx, h.loader, h.Config())
	if ctx.Err() != nil {
		return
	}
	snap := h.loader.Holder().Load()
	if err != nil && snap == nil {
		h.renderer.renderJSONError(w, err)
		return
	}
	resp := keywordsResponse(snap)
	if err != nil {
		resp.Error = err.Error()
	}
	renderJSON(w, http.StatusOK, resp)
}

// HandleFilter handles POST /filter. A JSON body returns the classification
// report; an HTML body returns the filtered page.
func (h *Handlers) HandleFilter(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, ops.MaxFilterBytes+4096)
	input := ops.FilterInput{}
	rawHTML := strings.HasPrefix(r.Header.Get("Content-Type"), "text/html")

	if rawHTML {
		data, err := io.ReadAll(body)
		if err != nil {
			h.renderer.renderJSONError(w, errors.NewInvalidRequest("request body too large or unreadable"))
			return
		}
		input.HTML = string(data)
		input.BaseURL = r.URL.Query().Get("base_url")
	} else {
		var req FilterRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			h.renderer.renderJSONError(w, errors.NewInvalidRequest("invalid JSON body: "+err.Error()))
			return
		}
		input.HTML = req.HTML
		input.BaseURL = req.BaseURL
		input.Keywords = req.Keywords
	}
	if len(input.Keywords) == 0 {
		// nil before the first publish: Filter fetches the lists itself.
		input.Set = h.loader.Holder().Set()
	}

	result, err := ops.Filter(h.log.WithContext(r.Context()), h.db, h.Config(), input)
	if err != nil {
		h.renderer.renderJSONError(w, err)
		return
	}

	if rawHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, result.HTML)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleHistory handles GET /history: recorded keyword builds, newest first.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	result, err := ops.History(r.Context(), h.db, ops.HistoryInput{
		Status: status,
		Limit:  parseIntParam(r, "limit", ops.DefaultHistoryLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "history", HistoryPageData{
		PageData: PageData{
			Title:   "Fetch history",
			Version: h.renderer.version,
			Nav:     "history",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		Status:     status,
	})
}

// HandleRun handles GET /history/{id}: one run with its per-source reports.
// The id "latest" selects the most recent run.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	input := ops.FetchRunInput{ID: id}
	if id == "latest" {
		input = ops.FetchRunInput{Latest: true}
	}

	run, err := ops.FetchRun(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, run)
		return
	}

	h.renderer.renderPage(w, "run", RunPageData{
		PageData: PageData{
			Title:   "Run " + run.ID,
			Version: h.renderer.version,
			Nav:     "history",
		},
		Run: run,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
