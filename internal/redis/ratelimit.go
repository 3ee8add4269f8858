package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:account:{account_id}:send - per-window outbound send limit
// - ratelimit:{ip}:admin - per-window admin API limit

// RateLimitConfig contains configuration for rate limiting
type RateLimitConfig struct {
	SendLimit   int           // Max outbound sends per account per window
	SendWindow  time.Duration // Send rate limit window
	AdminLimit  int           // Max admin requests per IP per window
	AdminWindow time.Duration // Admin rate limit window
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		SendLimit:   30,
		SendWindow:  60 * time.Second,
		AdminLimit:  300,
		AdminWindow: 60 * time.Second,
	}
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool          // Whether the action is allowed
	Remaining int           // Remaining actions in the window
	ResetIn   time.Duration // Time until the window resets
	Limit     int           // The limit for this action
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	if config.SendLimit <= 0 {
		config.SendLimit = DefaultRateLimitConfig().SendLimit
	}
	if config.SendWindow <= 0 {
		config.SendWindow = DefaultRateLimitConfig().SendWindow
	}
	if config.AdminLimit <= 0 {
		config.AdminLimit = DefaultRateLimitConfig().AdminLimit
	}
	if config.AdminWindow <= 0 {
		config.AdminWindow = DefaultRateLimitConfig().AdminWindow
	}
	return &RateLimiter{
		client: client,
		config: config,
	}
}

func sendKey(accountID uint) string {
	return fmt.Sprintf("ratelimit:account:%d:send", accountID)
}

// AllowSend consumes one outbound send for an account.
func (r *RateLimiter) AllowSend(ctx context.Context, accountID uint) (bool, error) {
	res, err := r.checkLimit(ctx, sendKey(accountID), r.config.SendLimit, r.config.SendWindow)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// AllowAdmin checks if an IP can call the admin API
func (r *RateLimiter) AllowAdmin(ctx context.Context, ip string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:admin", ip)
	return r.checkLimit(ctx, key, r.config.AdminLimit, r.config.AdminWindow)
}

var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	else
		return {0, 0, ttl}
	end
`)

// checkLimit performs a fixed window counter check atomically
func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := limitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	allowed, _ := resultSlice[0].(int64)
	remaining, _ := resultSlice[1].(int64)
	ttl, _ := resultSlice[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(ttl) * time.Second,
		Limit:     limit,
	}, nil
}

// SendStatus returns the current send window of an account without consuming it
func (r *RateLimiter) SendStatus(ctx context.Context, accountID uint) (*RateLimitResult, error) {
	key := sendKey(accountID)
	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	_, _ = pipe.Exec(ctx)

	current := 0
	if val, err := getCmd.Int(); err == nil {
		current = val
	}
	ttl := r.config.SendWindow
	if ttlVal := ttlCmd.Val(); ttlVal > 0 {
		ttl = ttlVal
	}
	return &RateLimitResult{
		Allowed:   current < r.config.SendLimit,
		Remaining: max(r.config.SendLimit-current, 0),
		ResetIn:   ttl,
		Limit:     r.config.SendLimit,
	}, nil
}

// ResetSend clears the send window of an account (admin operation)
func (r *RateLimiter) ResetSend(ctx context.Context, accountID uint) error {
	return r.client.Del(ctx, sendKey(accountID)).Err()
}
