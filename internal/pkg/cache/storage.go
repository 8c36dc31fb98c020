package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"
)

// NewFiberStorage returns a fiber.Storage on the cache server, in its own
// logical database so limiter keys never mix with claim keys.
func NewFiberStorage(database int) fiber.Storage {
	opts := Options()
	host, rawPort, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		host, rawPort = "localhost", "6379"
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		port = 6379
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: database,
	})
}
