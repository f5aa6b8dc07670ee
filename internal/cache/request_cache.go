package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/internal/approval"
	"github.com/pocketpal/approvalflow/internal/models"
)

// Config holds redis cache configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RequestCache is a read-through cache over a RequestStore. The store
// underneath stays the single source of truth: every write path delegates
// first and then invalidates the cached copy, so the cache can go stale by
// at most one failed DEL (logged), never diverge silently.
type RequestCache struct {
	store  approval.RequestStore
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps store with a redis read-through cache
func New(store approval.RequestStore, cfg Config, logger *zap.Logger) (*RequestCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	logger.Info("Request cache connected", zap.String("addr", cfg.Addr))
	return &RequestCache{
		store:  store,
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func cacheKey(id string) string {
	return "payreq:" + id
}

// CreateRequest delegates to the store; nothing to invalidate for a new id
func (c *RequestCache) CreateRequest(ctx context.Context, req *models.PaymentRequest) error {
	return c.store.CreateRequest(ctx, req)
}

// GetRequest serves from redis when possible and falls back to the store.
// Cache failures are logged and degrade to a store read.
func (c *RequestCache) GetRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	raw, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err == nil {
		var req models.PaymentRequest
		if jsonErr := json.Unmarshal(raw, &req); jsonErr == nil {
			return &req, nil
		}
		// Unreadable entry: drop it and fall through to the store
		c.invalidate(ctx, id)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Cache read failed", zap.String("request_id", id), zap.Error(err))
	}

	req, err := c.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, jsonErr := json.Marshal(req); jsonErr == nil {
		if setErr := c.client.Set(ctx, cacheKey(id), raw, c.ttl).Err(); setErr != nil {
			c.logger.Warn("Cache write failed", zap.String("request_id", id), zap.Error(setErr))
		}
	}
	return req, nil
}

// ListRequests always hits the store; list results are not cached
func (c *RequestCache) ListRequests(ctx context.Context, filter models.RequestFilter, userID string) ([]*models.PaymentRequest, error) {
	return c.store.ListRequests(ctx, filter, userID)
}

// ApplyDecision delegates and invalidates on success
func (c *RequestCache) ApplyDecision(ctx context.Context, id string, fn approval.DecisionFunc) (*models.PaymentRequest, error) {
	updated, err := c.store.ApplyDecision(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, id)
	return updated, nil
}

// RecordFundingOutcome delegates and invalidates on success
func (c *RequestCache) RecordFundingOutcome(ctx context.Context, id, transactionRef, fundingErr string) error {
	if err := c.store.RecordFundingOutcome(ctx, id, transactionRef, fundingErr); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// Close releases the redis connection
func (c *RequestCache) Close() error {
	return c.client.Close()
}

func (c *RequestCache) invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		c.logger.Warn("Cache invalidation failed", zap.String("request_id", id), zap.Error(err))
	}
}
