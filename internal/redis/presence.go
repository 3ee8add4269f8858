package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// AccountPresence is the mirrored connectivity of one Zalo account
type AccountPresence struct {
	AccountID uint      `json:"account_id"`
	Connected bool      `json:"connected"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Redis keys for account presence
const (
	presenceKeyPrefix     = "zalo:account:"           // String storing account presence data
	presenceConnectedSet  = "zalo:accounts:connected" // Set of connected account IDs
	PresenceEventsChannel = "zalo:account_status"     // Pub/sub channel for status changes
)

// PresenceStore mirrors session connectivity into Redis so other
// processes can read fleet state without hitting the database.
type PresenceStore struct {
	client    *goredis.Client
	publisher *Publisher
	ttl       time.Duration
}

func NewPresenceStore(client *goredis.Client, publisher *Publisher, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return &PresenceStore{
		client:    client,
		publisher: publisher,
		ttl:       ttl,
	}
}

func presenceKey(accountID uint) string {
	return fmt.Sprintf("%s%d:presence", presenceKeyPrefix, accountID)
}

// SetAccountStatus records the account state and publishes the change
func (p *PresenceStore) SetAccountStatus(ctx context.Context, accountID uint, connected bool, state, detail string) error {
	status := AccountPresence{
		AccountID: accountID,
		Connected: connected,
		State:     state,
		Detail:    detail,
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	member := strconv.FormatUint(uint64(accountID), 10)
	pipe := p.client.Pipeline()
	pipe.Set(ctx, presenceKey(accountID), data, p.ttl)
	if connected {
		pipe.SAdd(ctx, presenceConnectedSet, member)
	} else {
		pipe.SRem(ctx, presenceConnectedSet, member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	if p.publisher == nil {
		return nil
	}
	return p.publisher.Publish(ctx, PresenceEventsChannel, data)
}

// Clear removes every connected marker. Called on shutdown since no session
// outlives the process.
func (p *PresenceStore) Clear(ctx context.Context) error {
	return p.client.Del(ctx, presenceConnectedSet).Err()
}
