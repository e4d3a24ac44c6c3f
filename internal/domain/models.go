// Package domain defines the persistence models for medications, intake
// records, tasks, and notifications. These types are mapped with GORM and
// form the core data layer of the adherence backend.
package domain

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// IntakeStatus is the resolution state of a scheduled dose.
type IntakeStatus string

const (
	// IntakeStatusPending marks a dose that is scheduled but not yet resolved.
	IntakeStatusPending IntakeStatus = "PENDING"
	// IntakeStatusTaken marks a dose confirmed by the patient, a caregiver,
	// or the pillbox device.
	IntakeStatusTaken IntakeStatus = "TAKEN"
	// IntakeStatusMissed marks a dose that was skipped or swept as overdue.
	IntakeStatusMissed IntakeStatus = "MISSED"
)

// Terminal reports whether the status is a final resolution (taken/missed).
// A terminal record is never reverted to pending by schedule regeneration.
func (s IntakeStatus) Terminal() bool {
	return s == IntakeStatusTaken || s == IntakeStatusMissed
}

// Valid reports whether s is one of the known statuses.
func (s IntakeStatus) Valid() bool {
	switch s {
	case IntakeStatusPending, IntakeStatusTaken, IntakeStatusMissed:
		return true
	}
	return false
}

// IntakeMethod records how a dose left the pending state. It is empty while
// the record is pending and for records swept to missed by the scheduler.
type IntakeMethod string

const (
	// MethodManual means a patient or caregiver confirmed/skipped the dose.
	MethodManual IntakeMethod = "manual"
	// MethodDevice means a pillbox compartment-open event confirmed the dose.
	MethodDevice IntakeMethod = "device"
)

// TaskStatus is the completion state of a caregiver task.
type TaskStatus string

const (
	TaskStatusTodo TaskStatus = "TODO"
	TaskStatusDone TaskStatus = "DONE"
)

// Medication represents one medication in a patient's plan, including the
// physical pillbox compartment it occupies and its recurring dosing schedule.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - PatientID: identifier of the owning patient; indexed for retrieval.
//   - Name / Dosage: display name and dosage string (e.g. "Metformin", "500mg").
//   - Stock: remaining units; decremented when a dose is confirmed taken.
//   - RefillReminderStock: stock level at or below which a low-stock alert fires.
//   - Compartment: physical pillbox slot (1..device capacity).
//   - RefillDueDate: next scheduled refill.
//   - Schedule: embedded recurring dosing plan; zero frequency means none.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Medication struct {
	ID                  string         `json:"id"                    gorm:"type:char(36);primaryKey"`
	PatientID           string         `json:"patient_id"            gorm:"type:varchar(64);not null;index:idx_patient_meds"`
	Name                string         `json:"name"                  gorm:"type:varchar(255);not null"`
	Dosage              string         `json:"dosage"                gorm:"type:varchar(64);not null"`
	Stock               int            `json:"stock"                 gorm:"not null;check:stock >= 0"`
	RefillReminderStock int            `json:"refill_reminder_stock" gorm:"not null;default:0"`
	Compartment         int            `json:"compartment"           gorm:"not null;check:compartment > 0"`
	RefillDueDate       time.Time      `json:"refill_due_date"`
	Schedule            Schedule       `json:"schedule"              gorm:"embedded;embeddedPrefix:schedule_"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-"                     gorm:"index"`
}

// TableName returns the database table name for Medication.
func (Medication) TableName() string { return "medications" }

// IntakeRecord is one scheduled-dose occurrence and its resolution for a
// given day. Medication name, dosage, and compartment are denormalized
// snapshots taken at generation time so history survives later medication
// edits and deletions; there is deliberately no foreign key to medications.
//
// The ID is deterministic from (medication id, calendar day, clock time),
// see IntakeID, which makes per-day schedule regeneration idempotent.
type IntakeRecord struct {
	ID             string       `json:"id"              gorm:"type:varchar(96);primaryKey"`
	PatientID      string       `json:"patient_id"      gorm:"type:varchar(64);not null;index:idx_patient_intakes"`
	MedicationID   string       `json:"medication_id"   gorm:"type:char(36);not null;index"`
	MedicationName string       `json:"medication_name" gorm:"type:varchar(255);not null"`
	Dosage         string       `json:"dosage"          gorm:"type:varchar(64);not null"`
	Compartment    int          `json:"compartment"     gorm:"not null"`
	ScheduledTime  time.Time    `json:"scheduled_time"  gorm:"not null;index"`
	Status         IntakeStatus `json:"status"          gorm:"type:varchar(16);not null;check:status IN ('PENDING','TAKEN','MISSED')"`
	Method         IntakeMethod `json:"method,omitempty" gorm:"type:varchar(16)"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TableName returns the database table name for IntakeRecord.
func (IntakeRecord) TableName() string { return "intake_records" }

// IntakeID builds the deterministic record id for a scheduled dose slot.
// The clock string must be normalized "HH:MM"; day is truncated to its date.
func IntakeID(medicationID string, day time.Time, clock string) string {
	return fmt.Sprintf("intake:%s:%s:%s", medicationID, day.Format("2006-01-02"), clock)
}

// Task is a caregiver to-do item. Tasks sit outside the intake engine and are
// plain CRUD entities.
type Task struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	CaregiverID string         `json:"caregiver_id" gorm:"type:varchar(64);not null;index:idx_caregiver_tasks"`
	Title       string         `json:"title"       gorm:"type:varchar(255);not null"`
	Description string         `json:"description" gorm:"type:text"`
	DueDate     time.Time      `json:"due_date"`
	Status      TaskStatus     `json:"status"      gorm:"type:varchar(16);not null;default:'TODO';check:status IN ('TODO','DONE')"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Task.
func (Task) TableName() string { return "tasks" }

// Notification is a user-facing alert produced by the notification emitter
// (dose taken/missed, low stock, device health). Listed newest-first.
type Notification struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	Message   string    `json:"message"   gorm:"type:text;not null"`
	CreatedAt time.Time `json:"timestamp" gorm:"index"`
	Read      bool      `json:"read"      gorm:"not null;default:false"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// NotificationPreferences gates which ledger transitions produce alerts.
// One row per patient; absent rows fall back to DefaultPreferences.
type NotificationPreferences struct {
	PatientID  string    `json:"patient_id" gorm:"type:varchar(64);primaryKey"`
	MissedDose bool      `json:"missed_dose"`
	DoseTaken  bool      `json:"dose_taken"`
	LowStock   bool      `json:"low_stock"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for NotificationPreferences.
func (NotificationPreferences) TableName() string { return "notification_preferences" }

// DefaultPreferences returns the preference flags applied before a patient
// has saved any: missed-dose and low-stock alerts on, taken confirmations off.
func DefaultPreferences(patientID string) NotificationPreferences {
	return NotificationPreferences{
		PatientID:  patientID,
		MissedDose: true,
		DoseTaken:  false,
		LowStock:   true,
	}
}
