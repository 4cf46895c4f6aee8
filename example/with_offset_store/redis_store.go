package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisOffsetStore keeps the last committed LSN per slot in Redis so a
// restarted pipeline can resume where it left off.
type RedisOffsetStore struct {
	client *redis.Client
}

func NewRedisOffsetStore(addr, user, password string) (*RedisOffsetStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: user,
		Password: password,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisOffsetStore{client: client}, nil
}

func (s *RedisOffsetStore) SetOffset(lsn, slot string) error {
	return s.client.Set(context.Background(), offsetKey(slot), lsn, 0).Err()
}

func (s *RedisOffsetStore) GetOffset(slot string) string {
	result, _ := s.client.Get(context.Background(), offsetKey(slot)).Result()
	return result
}

func (s *RedisOffsetStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func offsetKey(slot string) string {
	return fmt.Sprintf("pgwalreceiver_offset_%s", slot)
}
