package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRenderPageExtractsImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<img src="/img/chart.png">
			<img src="https://cdn.example.com/logo.png">
			<img src="">
			<p>question text</p>
		</body></html>`))
	}))
	defer srv.Close()

	tool := NewRenderPage(srv.Client())
	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL + "/task/1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	markup, _ := result["html"].(string)
	if !strings.Contains(markup, "question text") {
		t.Fatalf("markup missing page content: %q", markup)
	}
	images, _ := result["images"].([]string)
	if len(images) != 2 {
		t.Fatalf("images = %v, want 2 entries", images)
	}
	if images[0] != srv.URL+"/img/chart.png" {
		t.Fatalf("relative src not resolved: %s", images[0])
	}
	if images[1] != "https://cdn.example.com/logo.png" {
		t.Fatalf("absolute src rewritten: %s", images[1])
	}
}

func TestRenderPageTruncatesLargeMarkup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>" + strings.Repeat("x", maxMarkupChars+500) + "</html>"))
	}))
	defer srv.Close()

	tool := NewRenderPage(srv.Client())
	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	markup, _ := result["html"].(string)
	if len(markup) != maxMarkupChars+len(truncatedMarker) {
		t.Fatalf("markup length = %d, want %d", len(markup), maxMarkupChars+len(truncatedMarker))
	}
	if !strings.HasSuffix(markup, truncatedMarker) {
		t.Fatal("truncated markup missing marker suffix")
	}
}

func TestRenderPageDegradesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tool := NewRenderPage(srv.Client())
	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("failures must come back as results, got error: %v", err)
	}
	if _, ok := result["error"]; !ok {
		t.Fatalf("result = %v, want error entry", result)
	}
}
