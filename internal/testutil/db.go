// Package testutil holds sqlite backed fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"zalo-hub/internal/domain/account"
	"zalo-hub/internal/domain/contact"
	"zalo-hub/internal/domain/conversation"
	"zalo-hub/internal/domain/message"
	"zalo-hub/internal/repository"
	"zalo-hub/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB returns a migrated, private in-memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, repository.InitSchema(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateAccount inserts an account with a full credential triplet.
func CreateAccount(t testing.TB, db *gorm.DB, id uint, zaloUserID string) account.Account {
	t.Helper()
	cookie := `[{"key":"zpsid","value":"test"}]`
	imei := "imei-" + zaloUserID
	ua := "Mozilla/5.0"
	a := account.Account{
		ID:         id,
		ZaloUserID: zaloUserID,
		Cookie:     &cookie,
		IMEI:       &imei,
		UserAgent:  &ua,
	}
	require.NoError(t, db.Create(&a).Error)
	return a
}

// CreateConversation inserts a friend and its conversation for an existing
// account.
func CreateConversation(t testing.TB, db *gorm.DB, accountID uint, userZaloID, userKey string) conversation.Conversation {
	t.Helper()
	f := contact.Friend{
		AccountID: accountID,
		UserID:    userKey,
		UserKey:   userKey,
		IsFr:      contact.FriendshipFriend,
	}
	require.NoError(t, db.Create(&f).Error)
	c := conversation.Conversation{
		AccountID:  accountID,
		FriendID:   f.ID,
		UserZaloID: userZaloID,
		UserKey:    userKey,
		IsFr:       contact.FriendshipFriend,
	}
	require.NoError(t, db.Create(&c).Error)
	return c
}

// CreateMessage inserts a sent message in conv.
func CreateMessage(t testing.TB, db *gorm.DB, conv conversation.Conversation, msgID string, isSelf bool) message.Message {
	t.Helper()
	from, to := conv.UserKey, conv.UserZaloID
	if isSelf {
		from, to = conv.UserZaloID, conv.UserKey
	}
	m := message.Message{
		ConversationID: conv.ID,
		AccountID:      conv.AccountID,
		MsgID:          msgID,
		CliMsgID:       "c" + msgID,
		IsSelf:         isSelf,
		UIDFrom:        from,
		IDTo:           to,
		Content:        "hello",
		MsgType:        "webchat",
		Status:         message.StatusSent,
		Origin:         message.OriginSocket,
	}
	require.NoError(t, db.Create(&m).Error)
	return m
}
