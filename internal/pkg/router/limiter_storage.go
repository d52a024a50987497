package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"
)

// limiterDatabase keeps rate limit counters apart from the cache (DB 0).
const limiterDatabase = 2

// NewLimiterStorage builds the Redis storage for the rate limiter from the
// cache client's options. The client must be reachable: the storage pings on
// construction and panics otherwise.
func NewLimiterStorage(client *goredis.Client, password string) fiber.Storage {
	host := "localhost"
	port := 6379
	if client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
