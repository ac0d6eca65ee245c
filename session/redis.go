// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix prefixes every key written by RedisStore.
const DefaultKeyPrefix = "webapp:session:"

// RedisStore is a Store in redis. Each session is a JSON value which expires
// shortly after the session does. Two sets index the session ids by sid and
// by subject.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	now       func() time.Time
	retention time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore using client. The client's lifecycle is
// managed by the caller.
//
// Supported options: WithNow, WithExpiredRetention, WithKeyPrefix
func NewRedisStore(client redis.UniversalClient, opt ...Option) (*RedisStore, error) {
	const op = "session.NewRedisStore"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrNilParameter)
	}
	opts := getStoreOpts(opt...)
	return &RedisStore{
		client:    client,
		prefix:    opts.withKeyPrefix,
		now:       opts.withNow,
		retention: opts.withRetention,
	}, nil
}

// Create stores s along with its index entries.
func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	const op = "RedisStore.Create"
	if err := s.validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrCodec, err)
	}
	ttl := s.ExpiresAt.Sub(r.now()) + r.retention
	if ttl <= 0 {
		return fmt.Errorf("%s: session already expired: %w", op, ErrInvalidParameter)
	}
	ok, err := r.client.SetNX(ctx, r.sessionKey(s.ID), b, ttl).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %s: %w", op, s.ID, ErrAlreadyExists)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if s.SID != "" {
			pipe.SAdd(ctx, r.sidKey(s.SID), s.ID)
			pipe.ExpireGT(ctx, r.sidKey(s.SID), ttl)
			pipe.ExpireNX(ctx, r.sidKey(s.SID), ttl)
		}
		pipe.SAdd(ctx, r.subjectKey(s.Subject), s.ID)
		pipe.ExpireGT(ctx, r.subjectKey(s.Subject), ttl)
		pipe.ExpireNX(ctx, r.subjectKey(s.Subject), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: unable to index session: %w", op, err)
	}
	return nil
}

// Read returns the session for id.
func (r *RedisStore) Read(ctx context.Context, id string) (*Session, error) {
	const op = "RedisStore.Read"
	if id == "" {
		return nil, fmt.Errorf("%s: missing id: %w", op, ErrInvalidParameter)
	}
	s, err := r.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s.IsExpired(r.now()) {
		if err := r.deleteSessions(ctx, s); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, ErrExpired)
	}
	return s, nil
}

// Delete removes the session for id.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	const op = "RedisStore.Delete"
	if id == "" {
		return nil
	}
	s, err := r.get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := r.deleteSessions(ctx, s); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteBySID removes the sessions with the provider session ID sid.
func (r *RedisStore) DeleteBySID(ctx context.Context, sid string) ([]*Session, error) {
	const op = "RedisStore.DeleteBySID"
	if sid == "" {
		return nil, fmt.Errorf("%s: missing sid: %w", op, ErrInvalidParameter)
	}
	deleted, err := r.deleteIndexed(ctx, r.sidKey(sid))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return deleted, nil
}

// DeleteBySubject removes the sessions of subject.
func (r *RedisStore) DeleteBySubject(ctx context.Context, subject string) ([]*Session, error) {
	const op = "RedisStore.DeleteBySubject"
	if subject == "" {
		return nil, fmt.Errorf("%s: missing subject: %w", op, ErrInvalidParameter)
	}
	deleted, err := r.deleteIndexed(ctx, r.subjectKey(subject))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return deleted, nil
}

// Ping checks the connection to redis.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) get(ctx context.Context, id string) (*Session, error) {
	const op = "RedisStore.get"
	b, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrCodec, err)
	}
	return &s, nil
}

func (r *RedisStore) deleteIndexed(ctx context.Context, indexKey string) ([]*Session, error) {
	const op = "RedisStore.deleteIndexed"
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var found []*Session
	for _, id := range ids {
		s, err := r.get(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		found = append(found, s)
	}
	if err := r.deleteSessions(ctx, found...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// stale members point at sessions which already expired
	if err := r.client.Del(ctx, indexKey).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return found, nil
}

func (r *RedisStore) deleteSessions(ctx context.Context, sessions ...*Session) error {
	if len(sessions) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, s := range sessions {
			pipe.Del(ctx, r.sessionKey(s.ID))
			if s.SID != "" {
				pipe.SRem(ctx, r.sidKey(s.SID), s.ID)
			}
			pipe.SRem(ctx, r.subjectKey(s.Subject), s.ID)
		}
		return nil
	})
	return err
}

func (r *RedisStore) sessionKey(id string) string { return r.prefix + "id:" + id }

func (r *RedisStore) sidKey(sid string) string { return r.prefix + "sid:" + sid }

func (r *RedisStore) subjectKey(sub string) string { return r.prefix + "sub:" + sub }
