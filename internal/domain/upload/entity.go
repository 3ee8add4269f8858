package upload

import "time"

// FailedFileStorage links a Message to an attachment kept after a failed send.
type FailedFileStorage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MessageID    uint      `gorm:"not null;index" json:"message_id"`
	FilePath     string    `gorm:"type:text;not null" json:"file_path"`
	FileName     string    `gorm:"size:512" json:"file_name"`
	MimeType     string    `gorm:"size:128" json:"mime_type"`
	Size         int64     `json:"size"`
	Backend      string    `gorm:"size:16" json:"backend"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (FailedFileStorage) TableName() string {
	return "failed_file_storages"
}
