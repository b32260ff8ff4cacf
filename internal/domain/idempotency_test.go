package domain

import (
	"testing"
	"time"
)

func TestDedupStateValid(t *testing.T) {
	tests := []struct {
		name  string
		state DedupState
		want  bool
	}{
		{name: "in flight", state: DedupStateInFlight, want: true},
		{name: "done", state: DedupStateDone, want: true},
		{name: "invalid", state: DedupState("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.Valid(); got != tc.want {
				t.Fatalf("state %q valid=%v, want %v", tc.state, got, tc.want)
			}
		})
	}
}

func TestDedupEntryExpired(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name  string
		entry DedupEntry
		want  bool
	}{
		{
			name:  "done and past ttl",
			entry: DedupEntry{State: DedupStateDone, ExpiresAt: now.Add(-time.Second)},
			want:  true,
		},
		{
			name:  "done exactly at ttl",
			entry: DedupEntry{State: DedupStateDone, ExpiresAt: now},
			want:  true,
		},
		{
			name:  "done before ttl",
			entry: DedupEntry{State: DedupStateDone, ExpiresAt: now.Add(time.Minute)},
			want:  false,
		},
		{
			name:  "in flight never expires",
			entry: DedupEntry{State: DedupStateInFlight},
			want:  false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.entry.Expired(now); got != tc.want {
				t.Fatalf("Expired()=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestReservationOutcomeString(t *testing.T) {
	if Reserved.String() != "reserved" {
		t.Fatalf("unexpected name %q", Reserved.String())
	}
	if Existing.String() != "existing" {
		t.Fatalf("unexpected name %q", Existing.String())
	}
	if ReservationOutcome(0).String() != "unknown" {
		t.Fatalf("unexpected name %q", ReservationOutcome(0).String())
	}
}
