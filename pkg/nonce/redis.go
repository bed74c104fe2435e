package nonce

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/veilcash/pullauth/pkg/contracts"
)

const redisKeyPrefix = "pullauth:nonce:"

// RedisLedger implements Ledger on Redis. SETNX gives the atomic
// check-and-set; keys carry no TTL because burned nonces are permanent.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger creates a ledger backed by the given Redis instance.
func NewRedisLedger(addr, password string, db int) *RedisLedger {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLedger{client: rdb}
}

// NewRedisLedgerFromClient wraps an existing client (tests, shared pools).
func NewRedisLedgerFromClient(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

// Consume implements Ledger.
func (l *RedisLedger) Consume(ctx context.Context, noteID contracts.NoteID, nonce uint64) error {
	key := redisKeyPrefix + Key(noteID, nonce)
	set, err := l.client.SetNX(ctx, key, 1, 0).Result()
	if err != nil {
		return fmt.Errorf("nonce ledger: redis setnx: %w", err)
	}
	if !set {
		return alreadyUsed(noteID, nonce)
	}
	return nil
}

// Close releases the underlying client.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}
