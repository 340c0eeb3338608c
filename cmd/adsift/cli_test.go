package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hpungsan/adsift/internal/config"
	"github.com/hpungsan/adsift/internal/db"
)

const chatPage = `<html><head></head><body>
<div class="bubble" id="m1"><div class="bubble-content"><div class="message">cheap VPN here</div></div></div>
<div class="bubble" id="m2"><div class="bubble-content"><div class="message">hello</div></div></div>
</body></html>`

// setupTestEnv creates a temporary database, a blacklist server and a config pointing at it.
func setupTestEnv(t *testing.T) (*appEnv, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/list.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["VPN", " casino ", 7, "t.me/promo"]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.ListURLs = srv.URL + "/list.json"

	return &appEnv{db: database, cfg: cfg, log: zerolog.Nop()}, srv
}

// runCLI runs args against a fresh app with stdin and returns stdout.
func runCLI(t *testing.T, env *appEnv, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLIApp(env)
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"adsift"}, args...))
	return out.String(), err
}

func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return out
}

// TestParseDuration tests the parseDuration helper function.
func TestParseDuration(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int
		expectError bool
	}{
		{name: "valid days", input: "7d", expected: 7},
		{name: "large value", input: "365d", expected: 365},
		{name: "zero days", input: "0d", expectError: true},
		{name: "negative", input: "-3d", expectError: true},
		{name: "missing suffix", input: "7", expectError: true},
		{name: "wrong unit", input: "7h", expectError: true},
		{name: "not a number", input: "xd", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("parseDuration(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"INFO", false, true},
		{"warn", false, false},
		{"", false, true},
		{"chatty", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := newLogger(tt.level, &buf)
			log.Debug().Msg("debug-line")
			log.Info().Msg("info-line")

			if got := strings.Contains(buf.String(), "debug-line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(buf.String(), "info-line"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v", got, tt.wantInfo)
			}
		})
	}
}

func TestCLIKeywords(t *testing.T) {
	env, srv := setupTestEnv(t)

	out, err := runCLI(t, env, "", "keywords")
	if err != nil {
		t.Fatalf("keywords command failed: %v", err)
	}
	output := decodeJSON(t, out)
	if output["count"] != float64(3) || output["mode"] != "tolerant" {
		t.Errorf("output = %v", output)
	}

	out, err = runCLI(t, env, "", "keywords", "--source", srv.URL+"/missing.json", "--mode", "strict")
	if err != nil {
		t.Fatalf("strict keywords command failed: %v", err)
	}
	output = decodeJSON(t, out)
	if output["count"] != float64(0) || !strings.Contains(output["error"].(string), "FETCH_FAILED") {
		t.Errorf("strict output = %v", output)
	}

	_, err = runCLI(t, env, "", "keywords", "--mode", "lenient")
	if err == nil || !strings.HasPrefix(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("err = %v, want [INVALID_REQUEST]", err)
	}
}

func TestCLICheck(t *testing.T) {
	env, _ := setupTestEnv(t)

	out, err := runCLI(t, env, "", "check", "-s", "https://a.example/list.json", "-s", "file:///etc/passwd")
	if err != nil {
		t.Fatalf("check command failed: %v", err)
	}
	output := decodeJSON(t, out)
	if output["valid"] != float64(1) || output["invalid"] != float64(1) {
		t.Errorf("output = %v", output)
	}
}

func TestCLIFilter(t *testing.T) {
	env, _ := setupTestEnv(t)

	t.Run("stdin with inline keywords", func(t *testing.T) {
		out, err := runCLI(t, env, chatPage, "filter", "-k", "hello")
		if err != nil {
			t.Fatalf("filter command failed: %v", err)
		}
		output := decodeJSON(t, out)
		stats := output["stats"].(map[string]any)
		if stats["flagged"] != float64(1) || stats["clean"] != float64(1) {
			t.Errorf("stats = %v", stats)
		}
	})

	t.Run("file with fetched keywords", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "page.html")
		if err := os.WriteFile(path, []byte(chatPage), 0o600); err != nil {
			t.Fatal(err)
		}
		out, err := runCLI(t, env, "", "filter", "--html", path)
		if err != nil {
			t.Fatalf("filter command failed: %v", err)
		}
		if !strings.Contains(out, "Hidden by filter for &lt;vpn&gt;") || !strings.HasPrefix(out, "<html>") {
			t.Errorf("html output = %s", out)
		}
	})

	t.Run("no page", func(t *testing.T) {
		_, err := runCLI(t, env, "   ", "filter")
		if err == nil || !strings.HasPrefix(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("err = %v, want [INVALID_REQUEST]", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := runCLI(t, env, "", "filter", filepath.Join(t.TempDir(), "nope.html"))
		if err == nil || !strings.HasPrefix(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("err = %v, want [INVALID_REQUEST]", err)
		}
	})
}

func TestCLIWatch(t *testing.T) {
	env, _ := setupTestEnv(t)

	script := strings.Join([]string{
		`{"op":"insert","html":"<div class=\"bubble\" id=\"m1\"><div class=\"bubble-content\"><div class=\"message\">cheap VPN</div></div></div>"}`,
		`{"op":"insert","html":"<div class=\"bubble\" id=\"m2\"><div class=\"bubble-content\"><div class=\"message\">hi</div></div></div>"}`,
		`{"op":"stats"}`,
	}, "\n")

	out, err := runCLI(t, env, script, "watch", "-k", "vpn")
	if err != nil {
		t.Fatalf("watch command failed: %v", err)
	}

	states := map[string]string{}
	var last map[string]any
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		ev := decodeJSON(t, scanner.Text())
		if ev["event"] == "classified" {
			states[ev["id"].(string)] = ev["state"].(string)
		}
		last = ev
	}
	if states["m1"] != "keyword" || states["m2"] != "clean" {
		t.Errorf("states = %v", states)
	}
	if last["event"] != "done" {
		t.Errorf("last event = %v, want done", last)
	}
}

func TestCLIHistoryRunPurge(t *testing.T) {
	env, _ := setupTestEnv(t)

	if _, err := runCLI(t, env, "", "keywords"); err != nil {
		t.Fatalf("keywords command failed: %v", err)
	}

	out, err := runCLI(t, env, "", "history")
	if err != nil {
		t.Fatalf("history command failed: %v", err)
	}
	items := decodeJSON(t, out)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", items)
	}
	id := items[0].(map[string]any)["id"].(string)

	out, err = runCLI(t, env, "", "run", id)
	if err != nil {
		t.Fatalf("run command failed: %v", err)
	}
	if run := decodeJSON(t, out); run["id"] != id || len(run["sources"].([]any)) != 1 {
		t.Errorf("run = %v", run)
	}

	out, err = runCLI(t, env, "", "run", "--latest")
	if err != nil || decodeJSON(t, out)["id"] != id {
		t.Errorf("run --latest = %s (err %v)", out, err)
	}

	_, err = runCLI(t, env, "", "run", "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	if err == nil || !strings.HasPrefix(err.Error(), "[NOT_FOUND]") {
		t.Errorf("err = %v, want [NOT_FOUND]", err)
	}

	_, err = runCLI(t, env, "", "history", "--status", "pending")
	if err == nil || !strings.HasPrefix(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("err = %v, want [INVALID_REQUEST]", err)
	}

	out, err = runCLI(t, env, "", "purge", "--older-than", "30d")
	if err != nil {
		t.Fatalf("purge command failed: %v", err)
	}
	if output := decodeJSON(t, out); output["purged"] != float64(0) {
		t.Errorf("purge = %v", output)
	}

	_, err = runCLI(t, env, "", "purge", "--older-than", "soon")
	if err == nil || !strings.HasPrefix(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("err = %v, want [INVALID_REQUEST]", err)
	}
}

func TestCLIServeRejectsBadPort(t *testing.T) {
	env, _ := setupTestEnv(t)

	_, err := runCLI(t, env, "", "serve", "--port", "70000")
	if err == nil || !strings.HasPrefix(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("err = %v, want [INVALID_REQUEST]", err)
	}
}

func TestCLIAppCommands(t *testing.T) {
	app := newCLIApp(&appEnv{cfg: config.DefaultConfig(), log: zerolog.Nop()})
	for name := range cliCommands {
		if name == "help" {
			continue
		}
		if app.Command(name) == nil {
			t.Errorf("command %q is routed to the CLI but not registered", name)
		}
	}
	if len(app.Commands) != len(cliCommands)-1 {
		t.Errorf("registered %d commands, routing knows %d", len(app.Commands), len(cliCommands)-1)
	}
}
