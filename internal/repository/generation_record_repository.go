package repository

import (
	"fmt"

	"gorm.io/gorm"

	"ollamachat/internal/model"
)

type GenerationRecordRepository struct {
	db *gorm.DB
}

func NewGenerationRecordRepository(db *gorm.DB) *GenerationRecordRepository {
	return &GenerationRecordRepository{db: db}
}

func (r *GenerationRecordRepository) Create(record *model.GenerationRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("create generation record failed: %w", err)
	}
	return nil
}

func (r *GenerationRecordRepository) ListByChatID(chatID uint, limit int) ([]model.GenerationRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var records []model.GenerationRecord
	if err := r.db.Where("chat_id = ?", chatID).Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list generation records failed: %w", err)
	}
	return records, nil
}
