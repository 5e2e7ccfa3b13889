package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yeremiapane/storefront-checkout/models"
	"github.com/yeremiapane/storefront-checkout/utils"
)

// OrderCache holds a user's recent order list. Cache failures are logged and
// treated as misses; the database stays authoritative.
type OrderCache interface {
	GetUserOrders(ctx context.Context, userID string) ([]models.PurchaseOrder, bool)
	SetUserOrders(ctx context.Context, userID string, orders []models.PurchaseOrder)
	InvalidateUser(ctx context.Context, userID string)
}

type noopOrderCache struct{}

// NewNoopOrderCache is used when no Redis address is configured.
func NewNoopOrderCache() OrderCache {
	return noopOrderCache{}
}

func (noopOrderCache) GetUserOrders(context.Context, string) ([]models.PurchaseOrder, bool) {
	return nil, false
}
func (noopOrderCache) SetUserOrders(context.Context, string, []models.PurchaseOrder) {}
func (noopOrderCache) InvalidateUser(context.Context, string)                        {}

type redisOrderCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisOrderCache(rdb *redis.Client, ttl time.Duration) OrderCache {
	return &redisOrderCache{rdb: rdb, ttl: ttl}
}

func userOrdersKey(userID string) string {
	return "orders:user:" + userID
}

func (c *redisOrderCache) GetUserOrders(ctx context.Context, userID string) ([]models.PurchaseOrder, bool) {
	cached, err := c.rdb.Get(ctx, userOrdersKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			utils.ErrorLogger.WithError(err).Warn("order cache read failed")
		}
		return nil, false
	}

	var orders []models.PurchaseOrder
	if err := json.Unmarshal(cached, &orders); err != nil {
		utils.ErrorLogger.WithError(err).Warn("order cache entry is corrupt")
		return nil, false
	}
	return orders, true
}

func (c *redisOrderCache) SetUserOrders(ctx context.Context, userID string, orders []models.PurchaseOrder) {
	js, err := json.Marshal(orders)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, userOrdersKey(userID), js, c.ttl).Err(); err != nil {
		utils.ErrorLogger.WithError(err).Warn("order cache write failed")
	}
}

func (c *redisOrderCache) InvalidateUser(ctx context.Context, userID string) {
	if err := c.rdb.Del(ctx, userOrdersKey(userID)).Err(); err != nil {
		utils.ErrorLogger.WithError(err).Warn("order cache invalidation failed")
	}
}
