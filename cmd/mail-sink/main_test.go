package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func postSend(t *testing.T, s *sink, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleSend(rec, req)
	return rec
}

func TestHandleSendAccepts(t *testing.T) {
	s := &sink{}
	rec := postSend(t, s, `{"to":"e1@x.com","subject":"hi","body":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleSendFailsFirstN(t *testing.T) {
	s := &sink{failFirstN: 2}

	for i := 1; i <= 2; i++ {
		rec := postSend(t, s, `{"to":"e1@x.com"}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("request %d: status = %d, want 503", i, rec.Code)
		}
	}
	rec := postSend(t, s, `{"to":"e1@x.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("request 3: status = %d, want 200 after N failures", rec.Code)
	}
}

func TestHandleSendRejectsBadInput(t *testing.T) {
	s := &sink{}

	if rec := postSend(t, s, `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", rec.Code)
	}
	if rec := postSend(t, s, `{"subject":"no recipient"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing to: status = %d, want 422", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/send", nil)
	rec := httptest.NewRecorder()
	s.handleSend(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d, want 405", rec.Code)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("a long subject line", 6); got != "a long..." {
		t.Errorf("truncate = %q", got)
	}
}
