package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"buildledger/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type CacheService interface {
	// Plan caching
	GetPlans(ctx context.Context) ([]*models.SubscriptionPlan, error)
	SetPlans(ctx context.Context, plans []*models.SubscriptionPlan, ttl time.Duration) error
	InvalidatePlans(ctx context.Context) error

	// Dashboard caching
	GetDashboard(ctx context.Context, userID uuid.UUID) (map[string]interface{}, error)
	SetDashboard(ctx context.Context, userID uuid.UUID, summary map[string]interface{}, ttl time.Duration) error
	InvalidateDashboard(ctx context.Context, userID uuid.UUID) error

	// Rate limiting
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) error

	// Generic string operations for refresh token storage
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port style addresses as well as bare host:port.
	parsedAddr := strings.TrimPrefix(strings.TrimPrefix(addr, "rediss://"), "redis://")

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

const plansCacheKey = "buildledger:plans"

func (r *redisCacheService) GetPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	data, err := r.client.Get(ctx, plansCacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var plans []*models.SubscriptionPlan
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *redisCacheService) SetPlans(ctx context.Context, plans []*models.SubscriptionPlan, ttl time.Duration) error {
	data, err := json.Marshal(plans)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, plansCacheKey, data, ttl).Err()
}

func (r *redisCacheService) InvalidatePlans(ctx context.Context) error {
	return r.client.Del(ctx, plansCacheKey).Err()
}

func dashboardKey(userID uuid.UUID) string {
	return fmt.Sprintf("buildledger:dashboard:%s", userID.String())
}

func (r *redisCacheService) GetDashboard(ctx context.Context, userID uuid.UUID) (map[string]interface{}, error) {
	data, err := r.client.Get(ctx, dashboardKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var summary map[string]interface{}
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *redisCacheService) SetDashboard(ctx context.Context, userID uuid.UUID, summary map[string]interface{}, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, dashboardKey(userID), data, ttl).Err()
}

func (r *redisCacheService) InvalidateDashboard(ctx context.Context, userID uuid.UUID) error {
	return r.client.Del(ctx, dashboardKey(userID)).Err()
}

func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Get(ctx, "buildledger:ratelimit:"+key).Int()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return count >= limit, nil
}

func (r *redisCacheService) IncrementRateLimit(ctx context.Context, key string, window time.Duration) error {
	fullKey := "buildledger:ratelimit:" + key
	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *redisCacheService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
