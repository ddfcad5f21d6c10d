package session

import (
	"context"
	"testing"
	"time"
)

func TestTokenValidAt(t *testing.T) {
	end := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	s := &Session{EndsAt: end}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"during session", end.Add(-time.Hour), true},
		{"at session end", end, true},
		{"within grace period", end.Add(TokenGracePeriod - time.Minute), true},
		{"at grace boundary", end.Add(TokenGracePeriod), true},
		{"past grace period", end.Add(TokenGracePeriod + time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.TokenValidAt(tt.now); got != tt.want {
				t.Errorf("TokenValidAt(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestHasNetwork(t *testing.T) {
	s := &Session{Networks: []Network{
		{SSID: "campus-a", BSSID: "aa:bb:cc:dd:ee:01"},
		{SSID: "campus-b", BSSID: "aa:bb:cc:dd:ee:02"},
	}}

	if !s.HasNetwork("campus-a", "aa:bb:cc:dd:ee:01") {
		t.Error("registered pair should match")
	}
	// SSID and BSSID must belong to the same entry.
	if s.HasNetwork("campus-a", "aa:bb:cc:dd:ee:02") {
		t.Error("cross-paired ssid/bssid must not match")
	}
	if s.HasNetwork("campus-c", "aa:bb:cc:dd:ee:01") {
		t.Error("unregistered ssid must not match")
	}
}

func TestInMemoryRepository(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if _, err := repo.GetSession(ctx, "ses-1"); err != ErrSessionNotFound {
		t.Fatalf("GetSession() on empty repo error = %v, want ErrSessionNotFound", err)
	}

	repo.Put(&Session{ID: "ses-1", ClassID: 301, Token: 0xCAFE0001})

	s, err := repo.GetSession(ctx, "ses-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if s.ClassID != 301 || s.Token != 0xCAFE0001 {
		t.Errorf("session = %+v", s)
	}

	// Mutating the returned copy must not affect the stored record.
	s.Token = 0
	again, _ := repo.GetSession(ctx, "ses-1")
	if again.Token != 0xCAFE0001 {
		t.Error("repository returned a shared pointer, want a copy")
	}
}
