package wallet

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// BalanceCache keeps recent token balances in Redis. A nil client
// disables caching; every method degrades to a miss or a no-op so the
// service never depends on Redis being up.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &BalanceCache{client: client, ttl: ttl}
}

func balanceKey(walletKey string) string {
	return "wallet:balance:" + walletKey
}

func (c *BalanceCache) Get(ctx context.Context, walletKey string) (int64, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	val, err := c.client.Get(ctx, balanceKey(walletKey)).Result()
	if err != nil {
		return 0, false
	}
	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return balance, true
}

func (c *BalanceCache) Set(ctx context.Context, walletKey string, balance int64) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, balanceKey(walletKey), strconv.FormatInt(balance, 10), c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("wallet_key", walletKey).Msg("Failed to cache balance")
	}
}

func (c *BalanceCache) Invalidate(ctx context.Context, walletKeys ...string) {
	if c == nil || c.client == nil || len(walletKeys) == 0 {
		return
	}
	keys := make([]string, len(walletKeys))
	for i, k := range walletKeys {
		keys[i] = balanceKey(k)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate balance cache")
	}
}
