// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// IntakeRecord model: the per-day, per-dose rows the ledger regenerates and
// transitions.
//
// Records are keyed by the deterministic id from domain.IntakeID, so inserts
// during regeneration use an ON CONFLICT DO NOTHING upsert: re-running the
// generation for a day must never duplicate or clobber existing rows.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// ListIntakeHistory returns every intake record for patientID ordered by
// scheduled time ascending. On DB error, it returns the error.
func ListIntakeHistory(ctx context.Context, db *gorm.DB, patientID string) ([]domain.IntakeRecord, error) {
	var out []domain.IntakeRecord
	err := db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("scheduled_time asc").
		Find(&out).Error
	return out, err
}

// ListIntakeDay returns the patient's records whose scheduled time falls in
// [dayStart, dayEnd), ordered by scheduled time ascending.
func ListIntakeDay(ctx context.Context, db *gorm.DB, patientID string, dayStart, dayEnd time.Time) ([]domain.IntakeRecord, error) {
	var out []domain.IntakeRecord
	err := db.WithContext(ctx).
		Where("patient_id = ? AND scheduled_time >= ? AND scheduled_time < ?", patientID, dayStart, dayEnd).
		Order("scheduled_time asc").
		Find(&out).Error
	return out, err
}

// GetIntakeRecord fetches a single record by id, or ErrNotFound.
func GetIntakeRecord(ctx context.Context, db *gorm.DB, id string) (*domain.IntakeRecord, error) {
	var r domain.IntakeRecord
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListPendingByCompartment returns the patient's pending records for a
// pillbox compartment, earliest scheduled time first. The device event
// bridge uses this to pick its confirmation candidate.
func ListPendingByCompartment(ctx context.Context, db *gorm.DB, patientID string, compartment int) ([]domain.IntakeRecord, error) {
	var out []domain.IntakeRecord
	err := db.WithContext(ctx).
		Where("patient_id = ? AND compartment = ? AND status = ?", patientID, compartment, domain.IntakeStatusPending).
		Order("scheduled_time asc").
		Find(&out).Error
	return out, err
}

// ListPendingBefore returns all pending records (any patient) scheduled
// strictly before cutoff. The missed-dose sweep drains this set.
func ListPendingBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.IntakeRecord, error) {
	var out []domain.IntakeRecord
	err := db.WithContext(ctx).
		Where("status = ? AND scheduled_time < ?", domain.IntakeStatusPending, cutoff).
		Order("scheduled_time asc").
		Find(&out).Error
	return out, err
}

// InsertIntakeRecords inserts the given records, silently skipping ids that
// already exist (regeneration carry-over). A nil/empty slice is a no-op.
func InsertIntakeRecords(ctx context.Context, db *gorm.DB, recs []domain.IntakeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&recs).Error
}

// DeleteIntakeRecords removes the records with the given ids. Used only by
// regeneration to drop pending slots that no longer exist in the schedule.
func DeleteIntakeRecords(ctx context.Context, db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&domain.IntakeRecord{}).Error
}

// ReplaceIntakeRecords applies a regeneration diff in one transaction:
// the records named by drop are deleted and recs are inserted, skipping ids
// that already exist. Either both effects land or neither does.
func ReplaceIntakeRecords(ctx context.Context, db *gorm.DB, drop []string, recs []domain.IntakeRecord) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := DeleteIntakeRecords(ctx, tx, drop); err != nil {
			return err
		}
		return InsertIntakeRecords(ctx, tx, recs)
	})
}

// UpdateIntakeStatus sets the status and method of a record. If no rows are
// affected, it returns ErrNotFound. Transition legality is enforced by the
// ledger service, not here.
func UpdateIntakeStatus(ctx context.Context, db *gorm.DB, id string, status domain.IntakeStatus, method domain.IntakeMethod) error {
	res := db.WithContext(ctx).
		Model(&domain.IntakeRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "method": method})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IntakeStats returns the record count and latest update time for a patient's
// intake history. Handlers derive weak ETags from the pair so unchanged
// history can be answered with 304.
func IntakeStats(ctx context.Context, db *gorm.DB, patientID string) (int64, *time.Time, error) {
	var count int64
	if err := db.WithContext(ctx).
		Model(&domain.IntakeRecord{}).
		Where("patient_id = ?", patientID).
		Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Fetch the most recently touched record instead of scanning a bare
	// MAX() aggregate, which the SQLite driver reports as text.
	var latest domain.IntakeRecord
	if err := db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("updated_at desc").
		Take(&latest).Error; err != nil {
		return 0, nil, err
	}
	return count, &latest.UpdatedAt, nil
}
