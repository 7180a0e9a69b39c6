// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model: the idempotency check, the first write and the body link.
//
// All functions are context-aware and accept a *gorm.DB handle, so callers
// may pass a connection-scoped or transactional handle.
package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jeraldrich/sql-transformer/internal/domain"
)

// WriteState summarizes how far a message got in a previous run.
type WriteState int

const (
	MessageAbsent WriteState = iota
	// MessageWithoutBody: the row exists and has no body linked.
	MessageWithoutBody
	// MessageComplete: the row exists with a body linked.
	MessageComplete
)

// LookupMessageState distinguishes absent, persisted-without-body and
// complete messages.
func LookupMessageState(ctx context.Context, db *gorm.DB, id string) (WriteState, error) {
	var row struct {
		BodyID *string
	}
	err := db.WithContext(ctx).Model(&domain.Message{}).Select("body_id").Where("id = ?", id).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return MessageAbsent, nil
	case err != nil:
		return MessageAbsent, err
	case row.BodyID == nil:
		return MessageWithoutBody, nil
	default:
		return MessageComplete, nil
	}
}

// GetMessage fetches a message by ID, or ErrNotFound if missing.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMessage inserts m without touching its associations. Losing a race
// on the primary key yields an error wrapping ErrDuplicate.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	err := db.WithContext(ctx).Omit(clause.Associations).Create(m).Error
	if err != nil {
		if IsDuplicate(err) {
			return fmt.Errorf("message %s: %w", m.ID, ErrDuplicate)
		}
		return Classify(err)
	}
	return nil
}

// LinkBody points message id at bodyID. Only a message with no body linked
// is updated; it returns false when the message already had one (or does not
// exist).
func LinkBody(ctx context.Context, db *gorm.DB, id, bodyID string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND body_id IS NULL", id).
		Update("body_id", bodyID)
	if res.Error != nil {
		return false, Classify(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetMessageWithBody is GetMessage with the linked body loaded into m.Body.
func GetMessageWithBody(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Preload("Body").Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages").Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a page of messages ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
