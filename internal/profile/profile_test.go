package profile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/alice/about" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"alice","created_utc":1609459200,"comment_karma":120,"link_karma":30}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL).Fetch(context.Background(), " Alice ")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if p.Username != "alice" {
		t.Errorf("got username %q", p.Username)
	}
	if p.Karma() != 150 {
		t.Errorf("got karma %d, want 150", p.Karma())
	}
	want := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	if !p.Created.Equal(want) {
		t.Errorf("got created %v, want %v", p.Created, want)
	}
}

func TestClientFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Fetch(context.Background(), "ghost"); err == nil {
		t.Error("404 response did not error")
	}
}

func TestAgeDays(t *testing.T) {
	now := time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)
	p := Profile{Created: now.Add(-30*24*time.Hour - time.Hour)}
	if got := p.AgeDays(now); got != 30 {
		t.Errorf("got %d days, want 30", got)
	}
	if got := (Profile{}).AgeDays(now); got != 0 {
		t.Errorf("zero created: got %d days, want 0", got)
	}
	future := Profile{Created: now.Add(time.Hour)}
	if got := future.AgeDays(now); got != 0 {
		t.Errorf("future created: got %d days, want 0", got)
	}
}
