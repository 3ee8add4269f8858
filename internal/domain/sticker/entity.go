package sticker

import "time"

// Sticker caches protocol metadata for one (sticker_id, cate_id, type) triple.
type Sticker struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	StickerID        int64     `gorm:"not null;uniqueIndex:idx_stickers_identity,priority:1" json:"sticker_id"`
	CateID           int64     `gorm:"not null;uniqueIndex:idx_stickers_identity,priority:2" json:"cate_id"`
	Type             int       `gorm:"not null;uniqueIndex:idx_stickers_identity,priority:3" json:"type"`
	Text             string    `gorm:"size:255" json:"text"`
	StickerURL       string    `gorm:"type:text" json:"sticker_url"`
	StickerSpriteURL string    `gorm:"type:text" json:"sticker_sprite_url"`
	StickerWebpURL   string    `gorm:"type:text" json:"sticker_webp_url"`
	TotalFrames      int       `json:"total_frames"`
	Duration         int       `json:"duration"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Sticker) TableName() string {
	return "stickers"
}
