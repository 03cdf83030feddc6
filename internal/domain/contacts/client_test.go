package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testClient(baseURL string, retries int) *Client {
	return NewClient(Options{
		BaseURL:    baseURL,
		Token:      "test-token",
		PageSize:   2,
		MaxRetries: retries,
		Backoff:    time.Millisecond,
		Timeout:    time.Second,
	}, zerolog.Nop())
}

func contactsPage(ids []string, next string) page {
	p := page{NextPage: next}
	for _, id := range ids {
		p.Contacts = append(p.Contacts, ContactRecord{ID: id, Name: "c " + id})
	}
	return p
}

// ---------------------------------------------------------------------------
// Pagination
// ---------------------------------------------------------------------------

func TestFetchAllPaginatesWithTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		var p page
		switch r.URL.Query().Get("pageToken") {
		case "":
			p = contactsPage([]string{"c1", "c2"}, "tok-2")
		case "tok-2":
			p = contactsPage([]string{"c3"}, "")
		default:
			t.Errorf("unexpected pageToken %q", r.URL.Query().Get("pageToken"))
		}
		json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	all, err := testClient(srv.URL, 0).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 contacts, got %d", len(all))
	}
	if all[2].ID != "c3" {
		t.Errorf("expected last contact c3, got %s", all[2].ID)
	}
}

func TestFetchAllStopsOnShortPage(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		// One contact with PageSize=2 and no nextPage: the list is done.
		json.NewEncoder(w).Encode(contactsPage([]string{"c1"}, ""))
	}))
	defer srv.Close()

	all, err := testClient(srv.URL, 0).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(all))
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected a single request, got %d", n)
	}
}

// ---------------------------------------------------------------------------
// Retry behavior
// ---------------------------------------------------------------------------

func TestFetchRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(contactsPage([]string{"c1"}, ""))
	}))
	defer srv.Close()

	all, err := testClient(srv.URL, 3).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(all))
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestFetchFailsAfterRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 2).FetchAll(context.Background())
	if !errors.Is(err, ErrContactFetchFailed) {
		t.Fatalf("expected ErrContactFetchFailed, got %v", err)
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.Attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", fe.Attempts)
	}
	if fe.LastStatus != http.StatusInternalServerError {
		t.Errorf("expected last status 500, got %d", fe.LastStatus)
	}
}

func TestFetchDoesNotRetry4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3).FetchAll(context.Background())
	if !errors.Is(err, ErrContactFetchFailed) {
		t.Fatalf("expected ErrContactFetchFailed, got %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.LastStatus != http.StatusUnauthorized {
		t.Errorf("expected last status 401, got %d", fe.LastStatus)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", n)
	}
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(Options{
		BaseURL:    srv.URL,
		Token:      "t",
		MaxRetries: 5,
		Backoff:    time.Hour, // would hang forever if cancellation were ignored
		Timeout:    time.Second,
	}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := c.FetchAll(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrContactFetchFailed) {
			t.Fatalf("expected ErrContactFetchFailed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not honor context cancellation")
	}
}

func TestFetchErrorMessageIncludesStatus(t *testing.T) {
	fe := &FetchError{Attempts: 4, LastStatus: 502, Err: fmt.Errorf("unexpected status 502")}
	msg := fe.Error()
	for _, want := range []string{"4", "502"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message should contain %q: %s", want, msg)
		}
	}
}
