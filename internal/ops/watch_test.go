package ops

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/hpungsan/adsift/internal/errors"
)

const watchPage = `<html><body><div id="chat"></div></body></html>`

func decodeEvents(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad event line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func eventsOf(events []map[string]any, kind string) []map[string]any {
	var out []map[string]any
	for _, ev := range events {
		if ev["event"] == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestWatch_InlineKeywords(t *testing.T) {
	in := strings.Join([]string{
		`{"op":"insert","parent":"#chat","html":"<div class=\"bubble\" id=\"m1\"><div class=\"bubble-content\"><div class=\"message\">cheap vpn</div></div></div>"}`,
		`{"op":"click","selector":"#m1 .advertisement"}`,
		`{"op":"render"}`,
		`{"op":"bogus"}`,
		`not json`,
		``,
		`{"op":"insert","html":"<div class=\"bubble sponsored-message\" id=\"m2\"></div>"}`,
		`{"op":"stats"}`,
	}, "\n")
	var out bytes.Buffer

	err := Watch(context.Background(), nil, testConfig(""), WatchInput{
		Page:     watchPage,
		Root:     "body",
		Keywords: []string{"VPN"},
		In:       strings.NewReader(in),
		Out:      &out,
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	events := decodeEvents(t, &out)

	if kw := eventsOf(events, "keywords"); len(kw) != 1 || kw[0]["keywords"] != float64(1) {
		t.Errorf("keywords events = %v", kw)
	}

	classified := eventsOf(events, "classified")
	if len(classified) != 2 {
		t.Fatalf("classified events = %v", classified)
	}
	if classified[0]["id"] != "m1" || classified[0]["state"] != "keyword" || classified[0]["keyword"] != "vpn" {
		t.Errorf("first classified = %v", classified[0])
	}
	if classified[1]["id"] != "m2" || classified[1]["state"] != "sponsored" {
		t.Errorf("second classified = %v", classified[1])
	}

	docs := eventsOf(events, "document")
	if len(docs) != 1 {
		t.Fatalf("document events = %d", len(docs))
	}
	html, _ := docs[0]["html"].(string)
	if !strings.Contains(html, `id="m1"`) || strings.Contains(html, `class="bubble has-advertisement"`) {
		t.Errorf("rendered document does not show m1 revealed: %s", html)
	}

	if errs := eventsOf(events, "error"); len(errs) != 2 {
		t.Errorf("error events = %v, want 2", errs)
	}

	done := eventsOf(events, "done")
	if len(done) != 1 {
		t.Fatalf("done events = %v", done)
	}
	stats, _ := done[0]["stats"].(map[string]any)
	if stats["flagged"] != float64(1) || stats["sponsored"] != float64(1) {
		t.Errorf("final stats = %v", stats)
	}
	if done[0]["pending"] != float64(0) {
		t.Errorf("pending = %v, want 0", done[0]["pending"])
	}
}

func TestWatch_FetchesInBackground(t *testing.T) {
	srv := newListServer(t)
	database := newTestDB(t)
	in := `{"op":"insert","parent":"#chat","html":"<div class=\"bubble\" id=\"m1\"><div class=\"message\">Casino night</div></div>"}`
	var out bytes.Buffer

	err := Watch(context.Background(), database, testConfig(srv.URL+"/list.json"), WatchInput{
		Page: watchPage,
		Root: "#chat",
		In:   strings.NewReader(in),
		Out:  &out,
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	events := decodeEvents(t, &out)

	classified := eventsOf(events, "classified")
	if len(classified) != 1 || classified[0]["keyword"] != "casino" {
		t.Errorf("classified = %v", classified)
	}
	if kw := eventsOf(events, "keywords"); len(kw) != 1 || kw[0]["keywords"] != float64(3) {
		t.Errorf("keywords events = %v", kw)
	}

	hist, err := History(context.Background(), database, HistoryInput{})
	if err != nil {
		t.Fatal(err)
	}
	if hist.Pagination.Total != 1 {
		t.Errorf("recorded runs = %d, want 1", hist.Pagination.Total)
	}
}

func TestWatch_Validation(t *testing.T) {
	ctx := context.Background()

	if err := Watch(ctx, nil, testConfig(""), WatchInput{}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("missing streams error = %v", err)
	}
	err := Watch(ctx, nil, testConfig(""), WatchInput{Root: "#nope", In: strings.NewReader(""), Out: &bytes.Buffer{}})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("missing root error = %v", err)
	}
}

func TestWatch_ClassifiesInitialPage(t *testing.T) {
	const page = `<html><body><div id="chat">` +
		`<div class="bubble" id="m0"><div class="bubble-content"><div class="message">cheap vpn</div></div></div>` +
		`<div class="bubble" id="m1"><div class="message">hello</div></div>` +
		`</div></body></html>`

	tests := []struct {
		name     string
		keywords []string
		sources  string
	}{
		{name: "inline keywords", keywords: []string{"vpn"}},
		{name: "fetched keywords", sources: "/list.json"},
	}

	srv := newListServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("")
			if tt.sources != "" {
				cfg = testConfig(srv.URL + tt.sources)
			}
			in := `{"op":"render"}`
			var out bytes.Buffer

			err := Watch(context.Background(), nil, cfg, WatchInput{
				Page:     page,
				Root:     "#chat",
				Keywords: tt.keywords,
				In:       strings.NewReader(in),
				Out:      &out,
			})
			if err != nil {
				t.Fatalf("Watch failed: %v", err)
			}
			events := decodeEvents(t, &out)

			classified := eventsOf(events, "classified")
			if len(classified) != 2 {
				t.Fatalf("classified events = %v", classified)
			}
			if classified[0]["id"] != "m0" || classified[0]["state"] != "keyword" || classified[0]["keyword"] != "vpn" {
				t.Errorf("first classified = %v", classified[0])
			}
			if classified[1]["id"] != "m1" || classified[1]["state"] != "clean" {
				t.Errorf("second classified = %v", classified[1])
			}

			done := eventsOf(events, "done")
			if len(done) != 1 {
				t.Fatalf("done events = %v", done)
			}
			stats, _ := done[0]["stats"].(map[string]any)
			if stats["flagged"] != float64(1) || stats["clean"] != float64(1) {
				t.Errorf("final stats = %v", stats)
			}
			if done[0]["pending"] != float64(0) {
				t.Errorf("pending = %v, want 0", done[0]["pending"])
			}
		})
	}
}

func TestWatch_StateOnlyOnClassified(t *testing.T) {
	in := strings.Join([]string{
		`{"op":"insert","parent":"#chat","html":"<div class=\"bubble\" id=\"m1\"><div class=\"message\">hi</div></div>"}`,
		`{"op":"render"}`,
		`{"op":"stats"}`,
	}, "\n")
	var out bytes.Buffer

	err := Watch(context.Background(), nil, testConfig(""), WatchInput{
		Page:     watchPage,
		Keywords: []string{"vpn"},
		In:       strings.NewReader(in),
		Out:      &out,
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	for _, ev := range decodeEvents(t, &out) {
		_, hasState := ev["state"]
		if ev["event"] == "classified" {
			if ev["state"] != "clean" {
				t.Errorf("classified event state = %v, want clean", ev["state"])
			}
			continue
		}
		if hasState {
			t.Errorf("%v event carries state: %v", ev["event"], ev)
		}
	}
}
