// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Medication
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a medication is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.MedicationService) which enforces business rules such as
// schedule validation and ledger regeneration.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateMedication inserts a new Medication row for patientID. The id is a
// randomly generated UUID (string) and CreatedAt is set to UTC.
//
// On success, it returns the persisted Medication. On failure, it returns a
// DB error.
func CreateMedication(ctx context.Context, db *gorm.DB, m *domain.Medication) (*domain.Medication, error) {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMedications returns all medications belonging to patientID, ordered by
// creation time ascending (plan order). It returns an empty slice if the
// patient has none. On DB error, it returns the error.
func ListMedications(ctx context.Context, db *gorm.DB, patientID string) ([]domain.Medication, error) {
	var out []domain.Medication
	err := db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// GetMedication fetches a single medication by id and owner. If the record
// does not exist, it returns ErrNotFound. On other DB errors, the raw error
// is returned.
func GetMedication(ctx context.Context, db *gorm.DB, id, patientID string) (*domain.Medication, error) {
	var m domain.Medication
	err := db.WithContext(ctx).
		Where("id = ? AND patient_id = ?", id, patientID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMedication persists all columns of an existing medication. If no rows
// are affected (medication missing or not owned by its patient), it returns
// ErrNotFound.
func UpdateMedication(ctx context.Context, db *gorm.DB, m *domain.Medication) error {
	res := db.WithContext(ctx).
		Model(&domain.Medication{}).
		Where("id = ? AND patient_id = ?", m.ID, m.PatientID).
		Select("name", "dosage", "stock", "refill_reminder_stock", "compartment",
			"refill_due_date", "schedule_frequency", "schedule_times", "schedule_days").
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMedication soft-deletes a medication. Intake records referencing it
// are left untouched; history preservation is the ledger's concern. Returns
// ErrNotFound when nothing was deleted.
func DeleteMedication(ctx context.Context, db *gorm.DB, id, patientID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND patient_id = ?", id, patientID).
		Delete(&domain.Medication{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementStock atomically reduces a medication's stock by one, flooring at
// zero. It returns the refreshed medication row so callers can evaluate
// low-stock thresholds against the new value.
func DecrementStock(ctx context.Context, db *gorm.DB, id string) (*domain.Medication, error) {
	res := db.WithContext(ctx).
		Model(&domain.Medication{}).
		Where("id = ? AND stock > 0", id).
		UpdateColumn("stock", gorm.Expr("stock - 1"))
	if res.Error != nil {
		return nil, res.Error
	}
	var m domain.Medication
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
