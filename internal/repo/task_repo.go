// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Task model
// (caregiver to-dos).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// CreateTask inserts a new Task row owned by caregiverID. New tasks always
// start in the TODO state.
func CreateTask(ctx context.Context, db *gorm.DB, t *domain.Task) (*domain.Task, error) {
	t.ID = uuid.NewString()
	t.Status = domain.TaskStatusTodo
	t.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks returns all tasks belonging to caregiverID ordered by due date
// ascending. On DB error, it returns the error.
func ListTasks(ctx context.Context, db *gorm.DB, caregiverID string) ([]domain.Task, error) {
	var out []domain.Task
	err := db.WithContext(ctx).
		Where("caregiver_id = ?", caregiverID).
		Order("due_date asc").
		Find(&out).Error
	return out, err
}

// GetTask fetches a task by id ensuring it belongs to caregiverID, or
// ErrNotFound.
func GetTask(ctx context.Context, db *gorm.DB, id, caregiverID string) (*domain.Task, error) {
	var t domain.Task
	err := db.WithContext(ctx).
		Where("id = ? AND caregiver_id = ?", id, caregiverID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask persists title, description, due date, and status of an existing
// task. Returns ErrNotFound when the task is missing or owned elsewhere.
func UpdateTask(ctx context.Context, db *gorm.DB, t *domain.Task) error {
	res := db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("id = ? AND caregiver_id = ?", t.ID, t.CaregiverID).
		Select("title", "description", "due_date", "status").
		Updates(t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteTask soft-deletes a task. Returns ErrNotFound when nothing was
// deleted.
func DeleteTask(ctx context.Context, db *gorm.DB, id, caregiverID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND caregiver_id = ?", id, caregiverID).
		Delete(&domain.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
