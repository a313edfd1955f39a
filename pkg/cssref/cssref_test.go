package cssref

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// --- Tokenizer tests ---

func TestScanTokens(t *testing.T) {
	testCases := []struct {
		name     string
		css      string
		expected []string
	}{
		{
			"bare",
			`body { background: url(img/bg.png); }`,
			[]string{"img/bg.png"},
		},
		{
			"double_quoted",
			`body { background: url("img/bg.png"); }`,
			[]string{"img/bg.png"},
		},
		{
			"single_quoted",
			`body { background: url('img/bg.png'); }`,
			[]string{"img/bg.png"},
		},
		{
			"surrounding_whitespace",
			`body { background: url(  img/bg.png  ); }`,
			[]string{"img/bg.png"},
		},
		{
			"uppercase_call",
			`body { background: URL(img/bg.png); }`,
			[]string{"img/bg.png"},
		},
		{
			"multiple_tokens",
			`a { background: url(one.png); } b { background: url('two.png'); }`,
			[]string{"one.png", "two.png"},
		},
		{
			"import_double_quoted",
			`@import "theme.css";`,
			[]string{"theme.css"},
		},
		{
			"import_single_quoted",
			`@import 'theme.css';`,
			[]string{"theme.css"},
		},
		{
			"import_url_form_not_doubled",
			`@import url("theme.css");`,
			[]string{"theme.css"},
		},
		{
			"identifier_suffix_not_matched",
			`a { background: blurl(no.png); }`,
			nil,
		},
		{
			"no_references",
			`body { color: red; }`,
			nil,
		},
		{
			"empty_token_skipped",
			`a { background: url(""); }`,
			nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tokens := scanTokens(tc.css)
			if len(tokens) != len(tc.expected) {
				t.Fatalf("scanTokens found %d tokens, want %d: %+v", len(tokens), len(tc.expected), tokens)
			}
			for i, token := range tokens {
				if token.raw != tc.expected[i] {
					t.Errorf("token %d = %q, want %q", i, token.raw, tc.expected[i])
				}
				if tc.css[token.start:token.end] != token.raw {
					t.Errorf("token %d span [%d:%d] = %q, does not match raw %q",
						i, token.start, token.end, tc.css[token.start:token.end], token.raw)
				}
			}
		})
	}
}

// --- Rewrite tests ---

// recordingReplacer maps resolved URLs to replacement paths and records every
// URL it was invoked with.
type recordingReplacer struct {
	mu       sync.Mutex
	paths    map[string]string
	received []string
}

func (replacer *recordingReplacer) replace(_ context.Context, absoluteURL string) (string, error) {
	replacer.mu.Lock()
	replacer.received = append(replacer.received, absoluteURL)
	replacer.mu.Unlock()

	path, exists := replacer.paths[absoluteURL]
	if !exists {
		return "", fmt.Errorf("unexpected URL %s", absoluteURL)
	}
	return path, nil
}

func TestRewriteRelativeReferenceResolution(t *testing.T) {
	replacer := &recordingReplacer{paths: map[string]string{
		"https://cdn.example.com/img/a.png": "/cdn.example.com/img/a.png",
	}}

	css := `body { background: url(../img/a.png); }`
	result, err := Rewrite(context.Background(), css, "https://cdn.example.com/styles/a/app.css", replacer.replace)
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}

	if len(replacer.received) != 1 || replacer.received[0] != "https://cdn.example.com/img/a.png" {
		t.Errorf("replacer received %v, want the resolved absolute URL", replacer.received)
	}
	expected := `body { background: url("/cdn.example.com/img/a.png"); }`
	if result != expected {
		t.Errorf("Rewrite = %q, want %q", result, expected)
	}
}

func TestRewriteBarePathUsesStylesheetDirectory(t *testing.T) {
	replacer := &recordingReplacer{paths: map[string]string{
		"https://cdn.example.com/styles/img/a.png": "/cdn.example.com/styles/img/a.png",
	}}

	css := `body { background: url(img/a.png); }`
	_, err := Rewrite(context.Background(), css, "https://cdn.example.com/styles/app.css", replacer.replace)
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}
	if len(replacer.received) != 1 || replacer.received[0] != "https://cdn.example.com/styles/img/a.png" {
		t.Errorf("replacer received %v, want directory-prefixed URL", replacer.received)
	}
}

func TestRewriteProtocolRelativeToken(t *testing.T) {
	replacer := &recordingReplacer{paths: map[string]string{
		"//analytics.example.com/track.png": "/analytics.example.com/track.png",
	}}

	css := `.t { background: url(//analytics.example.com/track.png); color: red; }`
	result, err := Rewrite(context.Background(), css, "https://cdn.example.com/app.css", replacer.replace)
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}

	// The bare token must come back quoted; everything else byte-identical.
	expected := `.t { background: url("/analytics.example.com/track.png"); color: red; }`
	if result != expected {
		t.Errorf("Rewrite = %q, want %q", result, expected)
	}
}

func TestRewriteKeepsOriginalQuotes(t *testing.T) {
	replacer := &recordingReplacer{paths: map[string]string{
		"https://cdn.example.com/a.png": "/cdn.example.com/a.png",
	}}

	css := `a { background: url('https://cdn.example.com/a.png'); }`
	result, err := Rewrite(context.Background(), css, "https://site.example.com/app.css", replacer.replace)
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}

	expected := `a { background: url('/cdn.example.com/a.png'); }`
	if result != expected {
		t.Errorf("Rewrite = %q, want %q", result, expected)
	}
}

func TestRewriteImport(t *testing.T) {
	replacer := &recordingReplacer{paths: map[string]string{
		"https://fonts.example.com/face.css": "/fonts.example.com/face.css",
	}}

	css := `@import "https://fonts.example.com/face.css";` + "\n" + `body { color: red; }`
	result, err := Rewrite(context.Background(), css, "https://site.example.com/app.css", replacer.replace)
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}

	if !strings.Contains(result, `@import "/fonts.example.com/face.css";`) {
		t.Errorf("Rewrite = %q, want rewritten @import", result)
	}
}

func TestRewriteLeavesUntouchables(t *testing.T) {
	testCases := []struct {
		name string
		css  string
	}{
		{"data_uri", `a { background: url(data:image/png;base64,AAAA); }`},
		{"fragment", `a { clip-path: url(#clip); }`},
		{"no_references", `a { color: red; }`},
	}

	replacer := &recordingReplacer{paths: map[string]string{}}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Rewrite(context.Background(), tc.css, "https://site.example.com/app.css", replacer.replace)
			if err != nil {
				t.Fatalf("Rewrite returned error: %v", err)
			}
			if result != tc.css {
				t.Errorf("Rewrite changed untouchable input: %q -> %q", tc.css, result)
			}
		})
	}
	if len(replacer.received) != 0 {
		t.Errorf("replacer was invoked for untouchable references: %v", replacer.received)
	}
}

func TestRewriteSkipSentinelLeavesToken(t *testing.T) {
	skipAll := func(_ context.Context, _ string) (string, error) {
		return "", ErrSkip
	}

	css := `a { background: url(https://cdn.example.com/a.png); }`
	result, err := Rewrite(context.Background(), css, "https://site.example.com/app.css", skipAll)
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}
	if result != css {
		t.Errorf("Rewrite changed skipped token: %q -> %q", css, result)
	}
}

func TestRewritePropagatesReplacerError(t *testing.T) {
	replacerError := errors.New("fetch failed")
	failing := func(_ context.Context, _ string) (string, error) {
		return "", replacerError
	}

	css := `a { background: url(https://cdn.example.com/a.png); }`
	_, err := Rewrite(context.Background(), css, "https://site.example.com/app.css", failing)
	if !errors.Is(err, replacerError) {
		t.Errorf("Rewrite error = %v, want wrapped replacer error", err)
	}
}

func TestRewriteMultipleEditsPreserveOffsets(t *testing.T) {
	replacer := &recordingReplacer{paths: map[string]string{
		"https://cdn.example.com/one.png": "/cdn.example.com/one.png",
		"https://cdn.example.com/two.png": "/cdn.example.com/two.png",
	}}

	css := `a{background:url(https://cdn.example.com/one.png)}b{background:url("https://cdn.example.com/two.png")}`
	result, err := Rewrite(context.Background(), css, "https://site.example.com/app.css", replacer.replace)
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}

	expected := `a{background:url("/cdn.example.com/one.png")}b{background:url("/cdn.example.com/two.png")}`
	if result != expected {
		t.Errorf("Rewrite = %q, want %q", result, expected)
	}
}
