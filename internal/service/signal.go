package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/floralog/floralog"
)

// SignalChannel is the redis pubsub channel carrying store events.
const SignalChannel = "floralog:observations"

type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, event floralog.Event) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, SignalChannel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime forwards store events to output. input carries the current set of
// geocode prefixes to filter on; an empty set forwards everything. Returns
// when ctx is done or the subscription drops.
func (s *SignalService) Realtime(ctx context.Context, input chan []string, output chan floralog.Event) {
	pubsub := s.rdb.Subscribe(ctx, SignalChannel)
	defer pubsub.Close()

	var prefixes []string
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-input:
			if !ok {
				return
			}
			prefixes = next
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event floralog.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(
					ctx, "failed to decode event",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			if !matchPrefixes(event.Geocode, prefixes) {
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func matchPrefixes(geocode string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(geocode, p) {
			return true
		}
	}
	return false
}
