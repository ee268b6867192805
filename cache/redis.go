package cache

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"

	config "github.com/mkamau512/daktari_connect/configs"
)

var Client *redis.Client

// ConnectRedis wires the fee cache. Redis being down is not fatal; the fee
// resolver falls back to the database on every read.
func ConnectRedis() {
	addr := config.Config("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	Client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.Config("REDIS_PASSWORD"),
		DB:       0,
	})

	if err := Client.Ping(context.Background()).Err(); err != nil {
		log.Printf("⚠️ Redis not reachable at %s, fee lookups will skip the cache: %v", addr, err)
		Client = nil
		return
	}

	log.Println("✅ Redis connected successfully")
}
