// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used by the run
// summary and the ops endpoint.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/jeraldrich/sql-transformer/internal/domain"
)

// TableCounts is the number of rows per provisioned table.
type TableCounts struct {
	Users        int64 `json:"users"`
	Channels     int64 `json:"channels"`
	Correlations int64 `json:"correlations"`
	Messages     int64 `json:"messages"`
	Bodies       int64 `json:"message_bodies"`
	// WithoutBody counts messages with no body linked.
	WithoutBody int64 `json:"messages_without_body"`
	// UnlinkedBodies counts body rows whose message does not point at them:
	// runs interrupted between the body insert and the link.
	UnlinkedBodies int64 `json:"unlinked_bodies"`
}

// Stats counts rows in every table.
func Stats(ctx context.Context, db *gorm.DB) (TableCounts, error) {
	var tc TableCounts
	q := db.WithContext(ctx)
	for _, c := range []struct {
		model any
		dst   *int64
	}{
		{&domain.User{}, &tc.Users},
		{&domain.Channel{}, &tc.Channels},
		{&domain.Correlation{}, &tc.Correlations},
		{&domain.Message{}, &tc.Messages},
		{&domain.MessageBody{}, &tc.Bodies},
	} {
		if err := q.Model(c.model).Count(c.dst).Error; err != nil {
			return TableCounts{}, err
		}
	}

	if err := q.Model(&domain.Message{}).Where("body_id IS NULL").Count(&tc.WithoutBody).Error; err != nil {
		return TableCounts{}, err
	}
	err := q.Model(&domain.Message{}).
		Joins("JOIN message_bodies ON message_bodies.message_id = messages.id").
		Where("messages.body_id IS NULL").
		Count(&tc.UnlinkedBodies).Error
	if err != nil {
		return TableCounts{}, err
	}
	return tc, nil
}
