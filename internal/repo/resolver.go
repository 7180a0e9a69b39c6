package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jeraldrich/sql-transformer/internal/domain"
)

// Resolution says how GetOrCreate obtained its row.
type Resolution int

const (
	// Found: the row already existed.
	Found Resolution = iota
	// Created: this caller inserted the row.
	Created
	// Converged: another caller won the insert race; its row was returned.
	Converged
)

func (r Resolution) String() string {
	switch r {
	case Found:
		return "found"
	case Created:
		return "created"
	case Converged:
		return "converged"
	default:
		return "unknown"
	}
}

// GetOrCreate returns the row of type T matching key, inserting build() when
// none exists. Concurrent callers with the same key converge on the single
// row that won the insert:
//
//  1. look the row up by key;
//  2. insert a new one inside its own transaction;
//  3. on a uniqueness conflict, discard the attempt and re-read the winner;
//  4. on a transient failure, the transaction has already been rolled back,
//     so the whole lookup-then-create is retried once.
//
// Anything else is returned to the caller. A conflict whose winner does not
// match key (a different row holding the same unique value) surfaces as
// ErrDuplicate.
func GetOrCreate[T any](ctx context.Context, db *gorm.DB, key map[string]any, build func() *T) (*T, Resolution, error) {
	row, res, err := getOrCreate(ctx, db, key, build)
	if err != nil && IsTransient(err) {
		row, res, err = getOrCreate(ctx, db, key, build)
	}
	if err != nil {
		return nil, res, err
	}
	return row, res, nil
}

func getOrCreate[T any](ctx context.Context, db *gorm.DB, key map[string]any, build func() *T) (*T, Resolution, error) {
	existing, err := findBy[T](ctx, db, key)
	if err == nil {
		return existing, Found, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Found, Classify(err)
	}

	row := build()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(row).Error
	})
	if err == nil {
		return row, Created, nil
	}
	if !IsDuplicate(err) {
		return nil, Created, Classify(err)
	}

	winner, err := findBy[T](ctx, db, key)
	switch {
	case err == nil:
		return winner, Converged, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, Converged, fmt.Errorf("%w: conflicting row does not match %v", ErrDuplicate, key)
	default:
		return nil, Converged, Classify(err)
	}
}

func findBy[T any](ctx context.Context, db *gorm.DB, key map[string]any) (*T, error) {
	var row T
	if err := db.WithContext(ctx).Where(key).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ResolveUser gets or creates the user with the given id.
func ResolveUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, Resolution, error) {
	return GetOrCreate(ctx, db, map[string]any{"id": id}, func() *domain.User {
		return &domain.User{ID: id}
	})
}

// ResolveChannel gets or creates the channel with the given id.
func ResolveChannel(ctx context.Context, db *gorm.DB, id string) (*domain.Channel, Resolution, error) {
	return GetOrCreate(ctx, db, map[string]any{"id": id}, func() *domain.Channel {
		return &domain.Channel{ID: id}
	})
}

// ResolveCorrelation gets or creates the correlation with the given id.
func ResolveCorrelation(ctx context.Context, db *gorm.DB, id string) (*domain.Correlation, Resolution, error) {
	return GetOrCreate(ctx, db, map[string]any{"id": id}, func() *domain.Correlation {
		return &domain.Correlation{ID: id}
	})
}

// ResolveBody gets or creates the body of messageID with the given text. A
// message owns at most one body, so a competing body with different text
// makes this return ErrDuplicate.
func ResolveBody(ctx context.Context, db *gorm.DB, messageID, body string) (*domain.MessageBody, Resolution, error) {
	key := map[string]any{"message_id": messageID, "body": body}
	return GetOrCreate(ctx, db, key, func() *domain.MessageBody {
		return &domain.MessageBody{ID: uuid.NewString(), MessageID: messageID, Body: body}
	})
}
