package htmlfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"moverscan/pkg/errs"
	"moverscan/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

func newTestFetcher(retries int) *Fetcher {
	return New(5*time.Second, retries, time.Millisecond)
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != userAgent {
			t.Errorf("User-Agent = %q", ua)
		}
		if ref := r.Header.Get("Referer"); ref != "https://www.google.com/" {
			t.Errorf("first attempt Referer = %q; want google", ref)
		}
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(2).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "<html><body>ok</body></html>" {
		t.Errorf("body = %q", body)
	}
}

func TestFetch_403ThenSuccess_MutatesReferer(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			if r.Header.Get("Sec-Fetch-Site") != "none" {
				t.Errorf("first attempt Sec-Fetch-Site = %q; want none", r.Header.Get("Sec-Fetch-Site"))
			}
			w.WriteHeader(http.StatusForbidden)
			return
		}
		// Retry must look like same-site navigation.
		if r.Header.Get("Sec-Fetch-Site") != "same-origin" {
			t.Errorf("retry Sec-Fetch-Site = %q; want same-origin", r.Header.Get("Sec-Fetch-Site"))
		}
		if r.Header.Get("Origin") == "" {
			t.Error("retry missing Origin header")
		}
		if r.Header.Get("Referer") == "https://www.google.com/" {
			t.Error("retry Referer still google")
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(2).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "recovered" {
		t.Errorf("body = %q", body)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d; want 2", calls)
	}
}

func TestFetch_403Exhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestFetcher(2).Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !errs.Is(err, errs.KindUpstreamBlocked) {
		t.Errorf("error kind = %v; want upstream_blocked", errs.KindOf(err))
	}
	// initial attempt plus two retries
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d; want 3", calls)
	}
}

func TestFetch_404NotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(2).Fetch(context.Background(), srv.URL)
	if !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("error kind = %v; want not_found", errs.KindOf(err))
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d; want 1 (no retry on 404)", calls)
	}
}

func TestFetch_BadURL(t *testing.T) {
	_, err := newTestFetcher(0).Fetch(context.Background(), "://not-a-url")
	if !errs.Is(err, errs.KindInvalidArgument) {
		t.Errorf("error kind = %v; want invalid_argument", errs.KindOf(err))
	}
}

func TestRenderer_ShutdownBeforeLaunchIsNoop(t *testing.T) {
	r := NewRenderer(time.Second, time.Millisecond)
	r.Shutdown()
	r.Shutdown() // idempotent
}
