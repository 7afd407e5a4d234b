package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestFetchOneRevalidatesWithETag(t *testing.T) {
	var hits, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write(crlf(sampleICS))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "clinic", URL: srv.URL + "/cal.ics"}

	first, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if first.FromCache || len(first.Body) == 0 {
		t.Fatalf("first fetch should be fresh, got FromCache=%v len=%d", first.FromCache, len(first.Body))
	}

	second, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if !second.FromCache || string(second.Body) != string(first.Body) {
		t.Fatal("second fetch should reuse the cached body after 304")
	}
	if hits.Load() != 2 || conditional.Load() != 1 {
		t.Fatalf("hits=%d conditional=%d", hits.Load(), conditional.Load())
	}
}

func TestFetchOneFallsBackToCacheOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.Write(crlf(sampleICS))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "clinic", URL: srv.URL}

	if _, err := f.FetchOne(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	fail.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatalf("expected cached fallback, got %v", err)
	}
	if !res.FromCache {
		t.Fatal("expected FromCache")
	}
}

func TestFetchAllJoinsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Write(crlf(sampleICS))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	results, err := f.FetchAll(context.Background(), []Source{
		{ID: "good", URL: srv.URL + "/good"},
		{ID: "bad", URL: srv.URL + "/missing"},
		{ID: "empty"},
	})
	if len(results) != 1 || results[0].Source.ID != "good" {
		t.Fatalf("unexpected results %+v", results)
	}
	if err == nil || !strings.Contains(err.Error(), "bad:") || !strings.Contains(err.Error(), "empty:") {
		t.Fatalf("expected joined error naming failed sources, got %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://calendar.example.com/private/abc.ics?token=secret")
	if got != "https://calendar.example.com/...(redacted)" {
		t.Fatalf("got %q", got)
	}
	if redactURL("not a url") != "ics://...(redacted)" {
		t.Fatal("expected opaque redaction for unparsable URL")
	}
}
