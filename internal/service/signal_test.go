package service

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/floralog/floralog"
)

func TestMatchPrefixes(t *testing.T) {
	cases := []struct {
		geocode  string
		prefixes []string
		want     bool
	}{
		{"u4pruy", nil, true},
		{"u4pruy", []string{}, true},
		{"u4pruy", []string{"u4"}, true},
		{"u4pruy", []string{"xn", "u4p"}, true},
		{"u4pruy", []string{"xn"}, false},
		{"", []string{"u4"}, false},
		{"", nil, true},
	}
	for _, tc := range cases {
		if got := matchPrefixes(tc.geocode, tc.prefixes); got != tc.want {
			t.Errorf("matchPrefixes(%q, %v) = %v, want %v", tc.geocode, tc.prefixes, got, tc.want)
		}
	}
}

func TestRealtimeStopsOnContextCancel(t *testing.T) {
	// Unreachable redis: the subscription never delivers, so the loop must
	// still unwind promptly on cancellation, even with nobody draining output
	// and a sender blocked on input.
	s := NewSignalService(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))

	ctx, cancel := context.WithCancel(context.Background())
	input := make(chan []string)
	output := make(chan floralog.Event)

	done := make(chan struct{})
	go func() {
		s.Realtime(ctx, input, output)
		close(done)
	}()

	go func() {
		select {
		case input <- []string{"u4"}:
		case <-ctx.Done():
		}
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Realtime did not return after cancellation")
	}
}
