package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	if !IsTransient(Transient(base)) {
		t.Error("Transient() not recognized by IsTransient")
	}
	if !IsPermanent(Permanent(base)) {
		t.Error("Permanent() not recognized by IsPermanent")
	}
	if IsTransient(Permanent(base)) || IsPermanent(Transient(base)) {
		t.Error("transient/permanent classifications overlap")
	}
	if Transient(nil) != nil || Permanent(nil) != nil {
		t.Error("wrapping nil must stay nil")
	}
	if !errors.Is(Transient(fmt.Errorf("wrap: %w", base)), base) {
		t.Error("wrapped cause lost through Transient")
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "timeout text", err: Transient(errors.New("i/o timeout")), want: "timeout"},
		{name: "refused", err: Transient(errors.New("dial tcp: connection refused")), want: "connection_refused"},
		{name: "dns", err: Transient(errors.New("lookup mx1: no such host")), want: "dns_error"},
		{name: "permanent", err: Permanent(errors.New("bad address")), want: "permanent_reject"},
		{name: "transient provider", err: Transient(errors.New("mailbox busy")), want: "provider_reject"},
		{name: "unwrapped", err: errors.New("weird"), want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reason(tt.err); got != tt.want {
				t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestHTTPSenderStatusMapping(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
		wantPermanent bool
	}{
		{status: 200},
		{status: 202},
		{status: 408, wantTransient: true},
		{status: 429, wantTransient: true},
		{status: 500, wantTransient: true},
		{status: 503, wantTransient: true},
		{status: 400, wantPermanent: true},
		{status: 422, wantPermanent: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			s := NewHTTPSender(srv.URL, "test-key", time.Second)
			err := s.Send(context.Background(), Message{To: "a@x.com", Subject: "s", Body: "b"})

			switch {
			case !tt.wantTransient && !tt.wantPermanent:
				if err != nil {
					t.Fatalf("Send() = %v, want nil", err)
				}
			case tt.wantTransient:
				if !IsTransient(err) {
					t.Fatalf("Send() = %v, want transient", err)
				}
			case tt.wantPermanent:
				if !IsPermanent(err) {
					t.Fatalf("Send() = %v, want permanent", err)
				}
			}
		})
	}
}

func TestHTTPSenderNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	s := NewHTTPSender(srv.URL, "", time.Second)
	err := s.Send(context.Background(), Message{To: "a@x.com"})
	if !IsTransient(err) {
		t.Fatalf("Send() against closed server = %v, want transient", err)
	}
}

func TestSimSender(t *testing.T) {
	always := NewSimSender(1.0, 0)
	if err := always.Send(context.Background(), Message{To: "a@x.com"}); err != nil {
		t.Fatalf("SuccessRate=1.0 Send() = %v, want nil", err)
	}

	never := NewSimSender(0.0, 0)
	err := never.Send(context.Background(), Message{To: "a@x.com"})
	if !IsTransient(err) {
		t.Fatalf("SuccessRate=0.0 Send() = %v, want transient", err)
	}
}
