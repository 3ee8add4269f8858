package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"zalo-hub/internal/domain/account"
	"zalo-hub/internal/domain/contact"
	"zalo-hub/internal/domain/conversation"
	"zalo-hub/internal/domain/message"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	AccountCount      int
	FriendsPerAccount int
	MessagesPerThread int
	// WithoutCredentials adds one account missing its credential triplet, which
	// the session manager must skip.
	WithoutCredentials bool
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		AccountCount:       2,
		FriendsPerAccount:  3,
		MessagesPerThread:  4,
		WithoutCredentials: true,
	}
}

// SeedResult holds the result of the seeding operation
type SeedResult struct {
	Accounts      []account.Account
	Friends       []contact.Friend
	Conversations []conversation.Conversation
	Messages      int
}

// Seed fills db with sample accounts, contacts, threads and messages. Rows
// are keyed by natural keys so running it twice does not duplicate them.
func Seed(ctx context.Context, db *gorm.DB, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}
	result := &SeedResult{}

	log.Println("Starting database seeding...")

	for i := 1; i <= cfg.AccountCount; i++ {
		acc, err := seedAccount(ctx, db, fmt.Sprintf("seed-owner-%d", i), i, true)
		if err != nil {
			return nil, fmt.Errorf("failed to seed account %d: %w", i, err)
		}
		result.Accounts = append(result.Accounts, acc)

		for j := 1; j <= cfg.FriendsPerAccount; j++ {
			friend, conv, err := seedThread(ctx, db, acc, j)
			if err != nil {
				return nil, fmt.Errorf("failed to seed thread %d of account %d: %w", j, acc.ID, err)
			}
			result.Friends = append(result.Friends, friend)
			result.Conversations = append(result.Conversations, conv)

			n, err := seedMessages(ctx, db, acc, conv, cfg.MessagesPerThread)
			if err != nil {
				return nil, fmt.Errorf("failed to seed messages of conversation %d: %w", conv.ID, err)
			}
			result.Messages += n
		}
	}

	if cfg.WithoutCredentials {
		acc, err := seedAccount(ctx, db, "seed-owner-nocreds", cfg.AccountCount+1, false)
		if err != nil {
			return nil, fmt.Errorf("failed to seed account without credentials: %w", err)
		}
		result.Accounts = append(result.Accounts, acc)
	}

	log.Printf("Database seeding completed: %d accounts, %d conversations, %d messages",
		len(result.Accounts), len(result.Conversations), result.Messages)
	return result, nil
}

func seedAccount(ctx context.Context, db *gorm.DB, zaloUserID string, n int, withCredentials bool) (account.Account, error) {
	var acc account.Account
	err := db.WithContext(ctx).Where("zalo_user_id = ?", zaloUserID).First(&acc).Error
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return acc, err
	}

	acc = account.Account{
		ZaloUserID:  zaloUserID,
		DisplayName: fmt.Sprintf("Seed Account %d", n),
		Phone:       fmt.Sprintf("+8490000%04d", n),
	}
	if withCredentials {
		cookie := fmt.Sprintf(`[{"domain":".zalo.me","key":"zpsid","value":"seed-%d"}]`, n)
		imei := fmt.Sprintf("seed-imei-%04d", n)
		ua := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
		acc.Cookie, acc.IMEI, acc.UserAgent = &cookie, &imei, &ua
	}
	if err := db.WithContext(ctx).Create(&acc).Error; err != nil {
		return acc, err
	}
	log.Printf("Account seeded: %s (id=%d)", zaloUserID, acc.ID)
	return acc, nil
}

func seedThread(ctx context.Context, db *gorm.DB, acc account.Account, n int) (contact.Friend, conversation.Conversation, error) {
	key := fmt.Sprintf("%s-friend-%d", acc.ZaloUserID, n)
	friend := contact.Friend{
		AccountID:   acc.ID,
		UserID:      key,
		UserKey:     key,
		DisplayName: fmt.Sprintf("Friend %d", n),
		ZaloName:    fmt.Sprintf("friend.%d", n),
		IsFr:        contact.FriendshipFriend,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}, {Name: "user_key"}}, DoNothing: true}).
		Create(&friend).Error
	if err != nil {
		return friend, conversation.Conversation{}, err
	}
	if friend.ID == 0 {
		if err := db.WithContext(ctx).Where("account_id = ? AND user_key = ?", acc.ID, key).First(&friend).Error; err != nil {
			return friend, conversation.Conversation{}, err
		}
	}

	conv := conversation.Conversation{
		AccountID:  acc.ID,
		FriendID:   friend.ID,
		UserZaloID: acc.ZaloUserID,
		UserKey:    key,
		IsFr:       contact.FriendshipFriend,
	}
	err = db.WithContext(ctx).
		Where(conversation.Conversation{AccountID: acc.ID, FriendID: friend.ID}).
		FirstOrCreate(&conv).Error
	return friend, conv, err
}

func seedMessages(ctx context.Context, db *gorm.DB, acc account.Account, conv conversation.Conversation, count int) (int, error) {
	base := time.Now().Add(-time.Duration(count) * time.Minute)
	rows := make([]message.Message, 0, count)
	for k := 0; k < count; k++ {
		isSelf := k%2 == 1
		from, to := conv.UserKey, acc.ZaloUserID
		if isSelf {
			from, to = acc.ZaloUserID, conv.UserKey
		}
		ts := base.Add(time.Duration(k) * time.Minute)
		rows = append(rows, message.Message{
			ConversationID: conv.ID,
			AccountID:      acc.ID,
			MsgID:          fmt.Sprintf("seed-%d-%d", conv.ID, k),
			IsSelf:         isSelf,
			CliMsgID:       fmt.Sprintf("seed-cli-%d-%d", conv.ID, k),
			UIDFrom:        from,
			IDTo:           to,
			Content:        fmt.Sprintf("seed message %d", k+1),
			MsgType:        "webchat",
			Status:         message.StatusSent,
			Origin:         message.OriginSocket,
			IsRead:         isSelf,
			Ts:             ts.UnixMilli(),
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "msg_id"}, {Name: "is_self"}}, DoNothing: true}).
		Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	last := base.Add(time.Duration(count-1) * time.Minute)
	if err := db.WithContext(ctx).Model(&conversation.Conversation{}).
		Where("id = ?", conv.ID).Update("last_message_at", last).Error; err != nil {
		return 0, err
	}
	return int(res.RowsAffected), nil
}

// ClearAndReseed clears all data and runs seed again (USE WITH CAUTION)
func ClearAndReseed(ctx context.Context, db *gorm.DB, tables []string, cfg *SeedConfig) (*SeedResult, error) {
	log.Println("Clearing all data...")
	if err := truncate(db, tables); err != nil {
		return nil, fmt.Errorf("failed to truncate tables: %w", err)
	}

	log.Println("Running seed...")
	return Seed(ctx, db, cfg)
}

// SeedDevelopment is a convenience function for development environment
func SeedDevelopment(ctx context.Context, db *gorm.DB) (*SeedResult, error) {
	cfg := DefaultSeedConfig()
	cfg.AccountCount = 3
	cfg.FriendsPerAccount = 5
	return Seed(ctx, db, cfg)
}
