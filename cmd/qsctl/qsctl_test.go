package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"

	"github.com/af-corp/querysmith/internal/client"
	"github.com/af-corp/querysmith/internal/keychain"
	"github.com/af-corp/querysmith/internal/types"
)

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q.sql")
	if err := os.WriteFile(path, []byte("select 1"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		file    string
		args    []string
		stdin   string
		want    string
		wantErr bool
	}{
		{"file wins", path, []string{"ignored"}, "", "select 1", false},
		{"args joined", "", []string{"count", "users"}, "", "count users", false},
		{"stdin", "", nil, "select 2", "select 2", false},
		{"blank stdin", "", nil, "  \n", "", true},
		{"missing file", filepath.Join(dir, "nope.sql"), nil, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readInput(tt.file, tt.args, strings.NewReader(tt.stdin))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveServerAndKey(t *testing.T) {
	km := keychain.NewWithRing(keyring.NewArrayKeyring(nil))
	t.Setenv("QUERYSMITH_URL", "")
	t.Setenv("QUERYSMITH_API_KEY", "")
	serverURL, apiKeyArg = "", ""

	if got := resolveServer(km); got != defaultServerURL {
		t.Errorf("default server = %q", got)
	}
	if _, err := resolveAPIKey(km); err == nil {
		t.Error("expected not-logged-in error")
	}

	km.Set(keychain.KeyServerURL, "https://qs.internal")
	km.Set(keychain.KeyAPIKey, "qs-prod-stored")
	if got := resolveServer(km); got != "https://qs.internal" {
		t.Errorf("keyring server = %q", got)
	}
	if got, _ := resolveAPIKey(km); got != "qs-prod-stored" {
		t.Errorf("keyring key = %q", got)
	}

	t.Setenv("QUERYSMITH_API_KEY", "qs-prod-env")
	if got, _ := resolveAPIKey(km); got != "qs-prod-env" {
		t.Errorf("env key = %q, env should beat keyring", got)
	}

	apiKeyArg = "qs-prod-flag"
	defer func() { apiKeyArg = "" }()
	if got, _ := resolveAPIKey(nil); got != "qs-prod-flag" {
		t.Errorf("flag key = %q", got)
	}
}

func TestRenderResult_Explanation(t *testing.T) {
	var buf bytes.Buffer
	renderResult(&buf, &types.Result{
		Mode: types.ModeExplain,
		Explanation: &types.Explanation{
			Summary: "Counts users.",
			Steps:   types.TextList{"scan users", "aggregate"},
		},
	})
	out := buf.String()
	for _, want := range []string{"Counts users.", "1. scan users", "2. aggregate"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := renderHistory(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No history") {
		t.Errorf("got %q", buf.String())
	}
}

func TestRenderHistory_Rows(t *testing.T) {
	var buf bytes.Buffer
	err := renderHistory(&buf, []types.HistoryRecord{{
		Mode:        types.ModeFormat,
		RequestText: "select *\nfrom users",
		Output:      "SELECT *\nFROM users;",
		CreatedAt:   time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "select * from users") {
		t.Errorf("request text should be flattened:\n%s", buf.String())
	}
}

func TestRenderUsage(t *testing.T) {
	var buf bytes.Buffer
	err := renderUsage(&buf, &client.Usage{Used: 12, Limit: 200, Remaining: 188, ResetsAt: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Remaining", "188", "200"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("got %q", got)
	}
}
