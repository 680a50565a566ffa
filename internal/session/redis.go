package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/xelaj/errs"
)

// redisLoader stores exactly one session blob under a fixed key, letting
// several processes share a session store keyed by phone number or account
// id at the caller's discretion (the key is opaque to this package).
type redisLoader struct {
	client *redis.Client
	key    string
}

// NewFromRedis builds a SessionLoader backed by a Redis key, for
// deployments that run multiple stateless client processes against one
// shared session store instead of a local file.
func NewFromRedis(client *redis.Client, key string) SessionLoader {
	return &redisLoader{client: client, key: key}
}

func (r *redisLoader) Load() (*Session, error) {
	data, err := r.client.Get(context.Background(), r.key).Bytes()
	switch {
	case err == nil:
		return Decode(data)
	case errors.Is(err, redis.Nil):
		return nil, errs.NotFound("redis key", r.key)
	default:
		return nil, errors.Wrap(err, "reading session from redis")
	}
}

func (r *redisLoader) Save(s *Session) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	return errors.Wrap(r.client.Set(context.Background(), r.key, data, 0).Err(), "writing session to redis")
}
