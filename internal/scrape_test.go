package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestScraperScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req scrapeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.URL != "https://example.com/about" || len(req.Formats) != 1 || req.Formats[0] != "markdown" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"markdown":"  # About\nWe make Go videos.  ","metadata":{"title":"About us","description":"Gopher channel"}}}`))
	}))
	defer srv.Close()

	page, err := NewScraper(srv.URL, "key").Scrape(context.Background(), "https://example.com/about")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if page.Title != "About us" || page.Markdown != "# About\nWe make Go videos." {
		t.Fatalf("unexpected page %+v", page)
	}

	summary := page.ProfileContext()
	for _, want := range []string{"Source: https://example.com/about", "Title: About us", "Description: Gopher channel", "We make Go videos."} {
		if !strings.Contains(summary, want) {
			t.Fatalf("expected %q in profile context:\n%s", want, summary)
		}
	}
}

func TestScraperErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()
	ctx := context.Background()

	if _, err := NewScraper("", "key").Scrape(ctx, "https://example.com"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected missing endpoint to be a validation error, got %v", err)
	}
	if _, err := NewScraper(srv.URL, "").Scrape(ctx, "https://example.com"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected missing key to be a validation error, got %v", err)
	}
	if _, err := NewScraper(srv.URL, "key").Scrape(ctx, "ftp://example.com"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected bad scheme to be a validation error, got %v", err)
	}

	s := NewScraper(srv.URL, "key")
	s.SetRetryPolicy(RetryPolicy{Attempts: 1})
	if _, err := s.Scrape(ctx, "https://example.com"); !errors.Is(err, ErrRateLimit) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	status.Store(http.StatusBadGateway)
	if _, err := s.Scrape(ctx, "https://example.com"); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	status.Store(http.StatusForbidden)
	if _, err := s.Scrape(ctx, "https://example.com"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestScraperRetriesTransientFailures(t *testing.T) {
	var requests atomic.Int32
	var status atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		if code := status.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"success":true,"data":{"markdown":"hello"}}`))
	}))
	defer srv.Close()
	ctx := context.Background()

	s := NewScraper(srv.URL, "key")
	s.SetRetryPolicy(RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond})

	page, err := s.Scrape(ctx, "https://example.com")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if page.Markdown != "hello" || requests.Load() != 2 {
		t.Fatalf("expected success on the second request, got %q after %d requests", page.Markdown, requests.Load())
	}

	requests.Store(0)
	status.Store(http.StatusForbidden)
	if _, err := s.Scrape(ctx, "https://example.com"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected no retry for a rejected request, got %d requests", requests.Load())
	}
}
