// Package cache реализует кэширование кошельков в Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ptanmay/gigworks-system/internal/model"
)

const walletTTL = 60 * time.Second

// WalletCache — сквозной кэш кошельков поверх Redis. Nil-экземпляр допустим
// и превращает все операции в no-op: сервис работает и без Redis.
type WalletCache struct {
	client redis.UniversalClient
}

// NewWalletCache создаёт кэш кошельков поверх указанного клиента Redis.
func NewWalletCache(client redis.UniversalClient) *WalletCache {
	if client == nil {
		return nil
	}
	return &WalletCache{client: client}
}

func walletKey(userID string) string {
	return "wallet:user:" + userID
}

// Get возвращает кошелёк из кэша. Второе значение — признак попадания.
func (c *WalletCache) Get(ctx context.Context, userID string) (*model.Wallet, bool) {
	if c == nil {
		return nil, false
	}

	val, err := c.client.Get(ctx, walletKey(userID)).Result()
	if err != nil {
		return nil, false
	}

	var w model.Wallet
	if err := json.Unmarshal([]byte(val), &w); err != nil {
		return nil, false
	}

	return &w, true
}

// Set сохраняет кошелёк в кэш на время walletTTL.
func (c *WalletCache) Set(ctx context.Context, w *model.Wallet) error {
	if c == nil || w == nil {
		return nil
	}

	b, err := json.Marshal(w)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, walletKey(w.UserID), b, walletTTL).Err()
}

// Invalidate удаляет кошелёк пользователя из кэша. Вызывается после операций,
// меняющих баланс.
func (c *WalletCache) Invalidate(ctx context.Context, userID string) error {
	if c == nil {
		return nil
	}

	err := c.client.Del(ctx, walletKey(userID)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
