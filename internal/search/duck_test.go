package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fakeDDG(t *testing.T, body string) *DuckDuckGo {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "" {
			t.Errorf("missing query parameter in %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewDuckDuckGoWithBase(srv.URL)
}

func TestSearch_AbstractResult(t *testing.T) {
	d := fakeDDG(t, `{
		"Heading": "Go",
		"Abstract": "Go is a programming language.",
		"AbstractURL": "https://example.org/go"
	}`)

	out, err := d.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "Go is a programming language.") {
		t.Fatalf("abstract missing from summary: %q", out)
	}
	if !strings.Contains(out, "https://example.org/go") {
		t.Fatalf("source URL missing from summary: %q", out)
	}
}

func TestSearch_RelatedTopicsCapped(t *testing.T) {
	d := fakeDDG(t, `{
		"RelatedTopics": [
			{"Text": "one"}, {"Text": "two"}, {"Text": "three"},
			{"Text": "four"}, {"Text": "five"}, {"Text": "six"}, {"Text": "seven"}
		]
	}`)

	out, err := d.Search(context.Background(), "things")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if strings.Contains(out, "six") || strings.Contains(out, "seven") {
		t.Fatalf("related topics must be capped at five: %q", out)
	}
	if !strings.Contains(out, "five") {
		t.Fatalf("expected the fifth topic present: %q", out)
	}
}

func TestSearch_EmptyResults(t *testing.T) {
	d := fakeDDG(t, `{}`)

	out, err := d.Search(context.Background(), "obscure thing")
	if err != nil {
		t.Fatalf("empty results are not an error: %v", err)
	}
	if !strings.Contains(out, "No instant results") {
		t.Fatalf("expected empty-result message, got %q", out)
	}
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	d := fakeDDG(t, `{}`)
	if _, err := d.Search(context.Background(), "   "); err == nil {
		t.Fatal("blank query must be rejected")
	}
}
