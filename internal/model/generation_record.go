package model

import "time"

const (
	GenerationCompleted = "completed"
	GenerationCancelled = "cancelled"
	GenerationFailed    = "failed"
)

// GenerationRecord is an audit row for one generation attempt. Rows are
// written asynchronously by the persist worker and never read on the
// request path.
type GenerationRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ChatID     uint      `gorm:"not null;index" json:"chat_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Model      string    `gorm:"size:64;not null" json:"model"`
	Status     string    `gorm:"size:16;not null;index" json:"status"`
	Chars      int       `gorm:"not null" json:"chars"`
	DurationMS int64     `gorm:"not null" json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
