package database

import (
	"github.com/redis/go-redis/v9"
)

// NewRedis builds the client backing the observation signal channel.
func NewRedis(addr string, password string, db int) *redis.Client {
	opts := redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	return redis.NewClient(&opts)
}
