package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListURLs != DefaultListURL {
		t.Fatalf("ListURLs = %q, want %q", cfg.ListURLs, DefaultListURL)
	}
	if cfg.FetchMode != FetchModeTolerant {
		t.Fatalf("FetchMode = %q, want %q", cfg.FetchMode, FetchModeTolerant)
	}
	if cfg.FetchTimeout() != 0 {
		t.Fatalf("FetchTimeout() = %v, want 0 (no timeout)", cfg.FetchTimeout())
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	body := `{"list_urls": "https://a.example/list.json\nhttps://b.example/list.json", "fetch_mode": "strict", "fetch_timeout_seconds": 15}`
	if err := os.WriteFile(Path(tmpDir), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListURLs != "https://a.example/list.json\nhttps://b.example/list.json" {
		t.Fatalf("ListURLs = %q", cfg.ListURLs)
	}
	if cfg.FetchMode != FetchModeStrict {
		t.Fatalf("FetchMode = %q, want %q", cfg.FetchMode, FetchModeStrict)
	}
	if cfg.FetchTimeout() != 15*time.Second {
		t.Fatalf("FetchTimeout() = %v, want 15s", cfg.FetchTimeout())
	}
	// Untouched scalars keep defaults
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(Path(tmpDir), []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(Path(tmpDir), []byte(`{"disabled_tools": ["filter_html", "history_list"]}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "filter_html" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "filter_html")
	}
	if cfg.DisabledTools[1] != "history_list" {
		t.Errorf("DisabledTools[1] = %q, want %q", cfg.DisabledTools[1], "history_list")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	globalConfig := `{"fetch_mode": "strict", "disabled_tools": ["history_list"]}`
	if err := os.WriteFile(Path(globalDir), []byte(globalConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	siftDir := filepath.Join(repoRoot, ".adsift")
	if err := os.MkdirAll(siftDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	repoConfig := `{"fetch_mode": "tolerant", "disabled_tools": ["filter_html"]}`
	if err := os.WriteFile(filepath.Join(siftDir, "config.json"), []byte(repoConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.FetchMode != FetchModeTolerant {
		t.Errorf("FetchMode = %q, want %q (repo override)", cfg.FetchMode, FetchModeTolerant)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.ListURLs != DefaultListURL {
		t.Errorf("ListURLs = %q, want default", cfg.ListURLs)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	globalDir := t.TempDir()

	siftDir := filepath.Join(tmpDir, ".adsift")
	if err := os.MkdirAll(siftDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(siftDir, "config.json"), []byte(`{"max_list_bytes": 4096}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.MaxListBytes != 4096 {
		t.Errorf("MaxListBytes = %d, want 4096", cfg.MaxListBytes)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{FetchMode: FetchModeStrict, DBMaxOpenConns: 5, FetchTimeoutSeconds: 30}
	overlay := &Config{FetchTimeoutSeconds: 10}

	result := Merge(base, overlay)

	if result.FetchTimeoutSeconds != 10 {
		t.Errorf("FetchTimeoutSeconds = %d, want 10 (overlay)", result.FetchTimeoutSeconds)
	}
	if result.FetchMode != FetchModeStrict {
		t.Errorf("FetchMode = %q, want %q (base, overlay empty)", result.FetchMode, FetchModeStrict)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
}

func TestMerge_BlankListURLsKeepsBase(t *testing.T) {
	result := Merge(DefaultConfig(), &Config{ListURLs: "  \n "})
	if result.ListURLs != DefaultListURL {
		t.Errorf("ListURLs = %q, want default", result.ListURLs)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{WatchConfig: true}, &Config{WatchConfig: false})
	if !result.WatchConfig {
		t.Error("WatchConfig should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTypes: []string{"history", " filter "}}
	overlay := &Config{DisabledTypes: []string{"filter", "keywords"}}

	result := Merge(base, overlay)

	want := []string{"history", "filter", "keywords"}
	if len(result.DisabledTypes) != len(want) {
		t.Fatalf("DisabledTypes = %v, want %v", result.DisabledTypes, want)
	}
	for i := range want {
		if result.DisabledTypes[i] != want[i] {
			t.Errorf("DisabledTypes[%d] = %q, want %q", i, result.DisabledTypes[i], want[i])
		}
	}
}
