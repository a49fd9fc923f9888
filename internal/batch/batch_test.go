package batch

import (
	"errors"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantN   int
		wantErr bool
	}{
		{
			name: "two recipients, order preserved",
			req: Request{
				Recipients: []string{"a@x.com", "b@x.com"},
				Subject:    "Hi",
				Body:       "Hello {name}!",
			},
			wantN: 2,
		},
		{
			name:    "empty recipients",
			req:     Request{Subject: "Hi", Body: "there"},
			wantErr: true,
		},
		{
			name: "malformed address",
			req: Request{
				Recipients: []string{"a@x.com", "not-an-address"},
			},
			wantErr: true,
		},
		{
			name: "display name rejected",
			req: Request{
				Recipients: []string{"Bob <bob@x.com>"},
			},
			wantErr: true,
		},
		{
			name: "empty address rejected",
			req: Request{
				Recipients: []string{""},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, err := Split(tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Split() expected error, got nil")
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("Split() error = %T, want *ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Split() unexpected error: %v", err)
			}
			if len(units) != tt.wantN {
				t.Fatalf("Split() produced %d units, want %d", len(units), tt.wantN)
			}
			for i, u := range units {
				if u.Recipient != tt.req.Recipients[i] {
					t.Errorf("unit %d recipient = %q, want %q (order must be preserved)",
						i, u.Recipient, tt.req.Recipients[i])
				}
				if u.Subject != tt.req.Subject || u.Body != tt.req.Body {
					t.Errorf("unit %d did not carry the batch templates", i)
				}
			}
		})
	}
}

func TestSplitPersonalizationResolution(t *testing.T) {
	req := Request{
		Recipients: []string{"e1@x.com", "e2@x.com"},
		Subject:    "Hi",
		Body:       "Hello {name}, {greeting}!",
		Defaults:   map[string]string{"greeting": "welcome", "name": "friend"},
		Personalization: map[string]map[string]string{
			"e1@x.com": {"name": "Bob"},
		},
	}

	units, err := Split(req)
	if err != nil {
		t.Fatalf("Split() unexpected error: %v", err)
	}

	// e1: recipient entry overrides the default name, default greeting kept.
	if got := units[0].Personalization["name"]; got != "Bob" {
		t.Errorf("e1 name = %q, want %q", got, "Bob")
	}
	if got := units[0].Personalization["greeting"]; got != "welcome" {
		t.Errorf("e1 greeting = %q, want %q", got, "welcome")
	}

	// e2: no entry, defaults only.
	if got := units[1].Personalization["name"]; got != "friend" {
		t.Errorf("e2 name = %q, want %q", got, "friend")
	}

	// The resolved record must be a copy: mutating it must not leak into
	// the request's defaults.
	units[0].Personalization["greeting"] = "mutated"
	if req.Defaults["greeting"] != "welcome" {
		t.Error("unit personalization aliases the batch defaults map")
	}
}

func TestValidateAddress(t *testing.T) {
	valid := []string{"a@x.com", "first.last@sub.domain.org", "u+tag@x.co"}
	for _, addr := range valid {
		if err := ValidateAddress(addr); err != nil {
			t.Errorf("ValidateAddress(%q) = %v, want nil", addr, err)
		}
	}
	invalid := []string{"", "plain", "@x.com", "a@", "a b@x.com", "Bob <a@x.com>"}
	for _, addr := range invalid {
		if err := ValidateAddress(addr); err == nil {
			t.Errorf("ValidateAddress(%q) = nil, want error", addr)
		}
	}
}
