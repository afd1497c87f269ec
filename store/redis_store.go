package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each document as a RedisJSON value under its key.
// Sessions are dedicated connections checked out of the client's pool.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Name() string { return BackendRedis }

func (r *RedisBackend) Connect(ctx context.Context) (Session, error) {
	conn := r.client.Conn()
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: redis: %v", ErrUnavailable, err)
	}
	return &redisSession{conn: conn}, nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisBackend) Close() error { return r.client.Close() }

// redisError maps a go-redis error onto the store error kinds. Server
// replies are write or lookup failures; anything else is a transport fault.
func redisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	var reply redis.Error
	if errors.As(err, &reply) {
		msg := reply.Error()
		if strings.Contains(msg, "does not exist") || strings.Contains(msg, "must be created at the root") {
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		}
		return fmt.Errorf("%w: %s", ErrWriteIncomplete, msg)
	}
	return fmt.Errorf("%w: redis: %v", ErrUnavailable, err)
}

type redisSession struct {
	conn   *redis.Conn
	closed bool
}

func (s *redisSession) Get(ctx context.Context, key, path string) (json.RawMessage, error) {
	if _, err := Field(path); err != nil {
		return nil, err
	}
	val, err := s.conn.JSONGet(ctx, key, path).Result()
	if err != nil {
		return nil, redisError(err)
	}
	if val == "" {
		return nil, ErrNotFound
	}
	return json.RawMessage(val), nil
}

func (s *redisSession) Set(ctx context.Context, key, path string, value any) error {
	if _, err := Field(path); err != nil {
		return err
	}
	data, err := encode(value)
	if err != nil {
		return err
	}
	status, err := s.conn.JSONSet(ctx, key, path, data).Result()
	if err != nil {
		return redisError(err)
	}
	if status != "OK" {
		return fmt.Errorf("%w: JSON.SET replied %q", ErrWriteIncomplete, status)
	}
	return nil
}

func (s *redisSession) Delete(ctx context.Context, key string) (int64, error) {
	n, err := s.conn.JSONDel(ctx, key, RootPath).Result()
	if err != nil {
		return 0, redisError(err)
	}
	return n, nil
}

func (s *redisSession) Batch(key string) Batch {
	return &redisBatch{session: s, key: key}
}

// Modify watches the key, reads the value at path, and writes the result in
// a MULTI/EXEC block that aborts if the key changed in between.
func (s *redisSession) Modify(ctx context.Context, key, path string, fn ModifyFunc) error {
	if err := s.conn.Do(ctx, "WATCH", key).Err(); err != nil {
		return redisError(err)
	}
	defer s.conn.Do(ctx, "UNWATCH")

	current, err := s.Get(ctx, key, path)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	data, err := encode(next)
	if err != nil {
		return err
	}

	var set *redis.StatusCmd
	_, err = s.conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.JSONSet(ctx, key, path, data)
		return nil
	})
	if err != nil {
		return redisError(err)
	}
	if set.Val() != "OK" {
		return fmt.Errorf("%w: JSON.SET replied %q", ErrWriteIncomplete, set.Val())
	}
	return nil
}

func (s *redisSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

type redisBatch struct {
	session *redisSession
	key     string
	ops     []pendingSet
}

func (b *redisBatch) Set(path string, value any) {
	b.ops = append(b.ops, pendingSet{path: path, value: value})
}

func (b *redisBatch) Len() int { return len(b.ops) }

// Exec sends EXISTS followed by one JSON.SET per operation inside a single
// MULTI/EXEC round trip.
func (b *redisBatch) Exec(ctx context.Context) ([]error, error) {
	payloads := make([][]byte, len(b.ops))
	for i, op := range b.ops {
		if _, err := Field(op.path); err != nil {
			return nil, err
		}
		data, err := encode(op.value)
		if err != nil {
			return nil, err
		}
		payloads[i] = data
	}

	var exists *redis.IntCmd
	sets := make([]*redis.StatusCmd, len(b.ops))
	_, err := b.session.conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, b.key)
		for i, op := range b.ops {
			sets[i] = pipe.JSONSet(ctx, b.key, op.path, payloads[i])
		}
		return nil
	})
	// A failed command inside EXEC surfaces as err; only transport faults
	// leave the queued commands without replies.
	if err != nil && exists.Err() != nil {
		return nil, redisError(err)
	}
	if exists.Val() == 0 {
		return nil, ErrNotFound
	}

	outcomes := make([]error, len(sets))
	for i, cmd := range sets {
		status, err := cmd.Result()
		switch {
		case err != nil:
			outcomes[i] = redisError(err)
		case status != "OK":
			outcomes[i] = fmt.Errorf("%w: JSON.SET replied %q", ErrWriteIncomplete, status)
		}
	}
	return outcomes, nil
}
