package guard

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

const DefaultRedisPrefix = "folio:guard:"

// RedisStore keeps each record in a hash {count, last} whose expiry is reset
// to the window on every failure, so an elapsed record disappears on its own.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	m, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return Record{}, false, xerrors.Wrap(err, "redis hgetall")
	}
	if len(m) == 0 {
		return Record{}, false, nil
	}
	rec, err := parseRecord(m)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Record, error) {
	k := s.key(key)

	// a record left over from an elapsed window restarts at 1
	prev, ok, err := s.Get(ctx, key)
	if err != nil {
		return Record{}, err
	}
	restart := ok && now.Sub(prev.LastAttempt) >= window

	var count *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if restart {
			p.Del(ctx, k)
		}
		count = p.HIncrBy(ctx, k, "count", 1)
		p.HSet(ctx, k, "last", strconv.FormatInt(now.UnixNano(), 10))
		p.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return Record{}, xerrors.Wrap(err, "redis record failure")
	}
	return Record{Count: int(count.Val()), LastAttempt: now}, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return xerrors.Wrap(err, "redis del")
	}
	return nil
}

// Ping checks connectivity, for readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func parseRecord(m map[string]string) (Record, error) {
	count, err := strconv.Atoi(m["count"])
	if err != nil {
		return Record{}, xerrors.Wrapf(err, "parse guard count %q", m["count"])
	}
	last, err := strconv.ParseInt(m["last"], 10, 64)
	if err != nil {
		return Record{}, xerrors.Wrapf(err, "parse guard last attempt %q", m["last"])
	}
	return Record{Count: count, LastAttempt: time.Unix(0, last)}, nil
}
