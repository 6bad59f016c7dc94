package database

import (
	"context"
	"fmt"

	"social-realtime/config"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConnect returns the client behind the socket.io adapter, or nil when
// REDIS_HOST is unset and the server runs as a single node.
func RedisConnect(ctx context.Context) (*redis.Client, error) {
	host := config.Config("REDIS_HOST")
	if host == "" {
		dbLog.Info("REDIS_HOST is empty, socket rooms stay local to this node")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, config.Config("REDIS_PORT")),
		Password: config.Config("REDIS_PASSWORD"),
		DB:       config.Int("REDIS_DB", 0),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	dbLog.Info("connection opened to redis %s", client.Options().Addr)
	return client, nil
}
