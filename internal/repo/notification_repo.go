// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for notifications
// and per-patient notification preferences.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// InsertNotification stores a new unread notification with the given message
// and creation time. The id is a randomly generated UUID.
func InsertNotification(ctx context.Context, db *gorm.DB, message string, at time.Time) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:        uuid.NewString(),
		Message:   message,
		CreatedAt: at.UTC(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotifications returns all notifications newest-first.
func ListNotifications(ctx context.Context, db *gorm.DB) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// MarkNotificationsRead flags every unread notification as read.
func MarkNotificationsRead(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("read = ?", false).
		Update("read", true).Error
}

// GetPreferences returns the patient's stored notification preferences, or
// the defaults when the patient has never saved any.
func GetPreferences(ctx context.Context, db *gorm.DB, patientID string) (*domain.NotificationPreferences, error) {
	var p domain.NotificationPreferences
	err := db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		def := domain.DefaultPreferences(patientID)
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePreferences upserts the patient's preference row.
func SavePreferences(ctx context.Context, db *gorm.DB, p *domain.NotificationPreferences) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "patient_id"}},
			UpdateAll: true,
		}).
		Create(p).Error
}
