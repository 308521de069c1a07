package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

// TestTruncateLabel verifies rune-safe shortening of banner values.
func TestTruncateLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short ascii", "openai / gpt-4o", 19, "openai / gpt-4o"},
		{"exact fit", strings.Repeat("a", 19), 19, strings.Repeat("a", 19)},
		{"long ascii", "anthropic / claude-sonnet-4", 19, "anthropic / claude…"},
		{"multi-byte at the cut", strings.Repeat("ü", 25), 19, strings.Repeat("ü", 18) + "…"},
		{"cjk model name", "ollama / 日本語モデル名前長いテスト", 19, "ollama / 日本語モデル名前長…"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := truncateLabel(tc.in, tc.max)
			if got != tc.want {
				t.Errorf("truncateLabel(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateLabel(%q, %d) = %q is not valid UTF-8", tc.in, tc.max, got)
			}
		})
	}
}

// TestRunInfo verifies the info subcommand against a stub server.
func TestRunInfo(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"version": "1.2.3",
			"strategy": "llm",
			"extensions": ["calc", "web"],
			"tools": ["calc__evaluate", "web__fetch"],
			"recent_calls": ["calc__evaluate"]
		}`))
	}))
	defer ts.Close()

	var out strings.Builder
	if code := runInfo(&out, ts.URL); code != 0 {
		t.Fatalf("runInfo exited %d, want 0; output:\n%s", code, out.String())
	}
	got := out.String()
	for _, want := range []string{
		"Version:    1.2.3",
		"Strategy:   llm",
		"Extensions: 2",
		"- web__fetch",
		"Recent calls",
		"- calc__evaluate",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("info output is missing %q:\n%s", want, got)
		}
	}
}

// TestRunInfo_Unreachable verifies the failure exit code.
func TestRunInfo_Unreachable(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	var out strings.Builder
	if code := runInfo(&out, addr); code != 1 {
		t.Errorf("runInfo against a closed server exited %d, want 1", code)
	}
	if !strings.Contains(out.String(), "cannot reach") {
		t.Errorf("output does not explain the failure:\n%s", out.String())
	}
}

// TestRunInfo_ServerError verifies that a non-200 answer fails the command.
func TestRunInfo_ServerError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	var out strings.Builder
	if code := runInfo(&out, ts.URL); code != 1 {
		t.Errorf("runInfo against a failing server exited %d, want 1", code)
	}
}
