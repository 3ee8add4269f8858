package account

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Account is one managed Zalo identity. Cookie, IMEI and UserAgent form the
// credential triplet required to log in.
type Account struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          *uint          `gorm:"index" json:"user_id,omitempty"`
	ZaloUserID      string         `gorm:"size:64;index" json:"zalo_user_id"`
	Cookie          *string        `gorm:"type:text" json:"-"`
	IMEI            *string        `gorm:"size:255" json:"-"`
	UserAgent       *string        `gorm:"type:text" json:"-"`
	IsConnected     bool           `gorm:"not null;default:false" json:"is_connected"`
	DisplayName     string         `gorm:"size:255" json:"display_name"`
	Avatar          string         `gorm:"type:text" json:"avatar"`
	Phone           string         `gorm:"size:32" json:"phone"`
	LastConnectedAt *time.Time     `json:"last_connected_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Account) TableName() string {
	return "accounts"
}

// HasCredentials reports whether all three credential fields are populated.
func (a Account) HasCredentials() bool {
	return nonBlank(a.Cookie) && nonBlank(a.IMEI) && nonBlank(a.UserAgent)
}

// OwnerKey is the owning application user id, or "" for unassigned accounts.
func (a Account) OwnerKey() string {
	if a.UserID == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*a.UserID), 10)
}

func (a Account) CookieValue() string    { return deref(a.Cookie) }
func (a Account) IMEIValue() string      { return deref(a.IMEI) }
func (a Account) UserAgentValue() string { return deref(a.UserAgent) }

func nonBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
