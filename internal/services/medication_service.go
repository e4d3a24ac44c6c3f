package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// DefaultCompartments is the pillbox compartment count assumed when a
// MedicationService is constructed without an explicit capacity.
const DefaultCompartments = 4

// MedicationRepo defines the repository contract required by
// MedicationService.
type MedicationRepo interface {
	CreateMedication(ctx context.Context, db *gorm.DB, m *domain.Medication) (*domain.Medication, error)
	ListMedications(ctx context.Context, db *gorm.DB, patientID string) ([]domain.Medication, error)
	GetMedication(ctx context.Context, db *gorm.DB, id, patientID string) (*domain.Medication, error)
	UpdateMedication(ctx context.Context, db *gorm.DB, m *domain.Medication) error
	DeleteMedication(ctx context.Context, db *gorm.DB, id, patientID string) error
}

// Regenerator triggers a ledger regeneration for a patient's current day.
// LedgerService satisfies it; tests substitute fakes.
type Regenerator interface {
	RegenerateDay(ctx context.Context, patientID string, now time.Time) error
}

// MedicationService manages the medication plan: CRUD with schedule and
// compartment validation. Every successful mutation re-derives today's
// intake records through the ledger so the day's plan never drifts from the
// medication list.
type MedicationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the medication repository.
	Repo MedicationRepo
	// Ledger regenerates the current day after plan changes.
	Ledger Regenerator
	// Capacity is the number of pillbox compartments a medication may be
	// assigned to. Zero falls back to DefaultCompartments.
	Capacity int
}

// NewMedicationService constructs a MedicationService. capacity <= 0 selects
// DefaultCompartments.
func NewMedicationService(db *gorm.DB, repo MedicationRepo, ledger Regenerator, capacity int) *MedicationService {
	if capacity <= 0 {
		capacity = DefaultCompartments
	}
	return &MedicationService{DB: db, Repo: repo, Ledger: ledger, Capacity: capacity}
}

// Create validates and persists a new medication for patientID, then
// regenerates today's intake records. now supplies the day boundary.
func (s *MedicationService) Create(ctx context.Context, patientID string, m domain.Medication, now time.Time) (*domain.Medication, error) {
	if err := s.validate(&m); err != nil {
		return nil, err
	}
	m.PatientID = patientID
	created, err := s.Repo.CreateMedication(ctx, s.DB, &m)
	if err != nil {
		return nil, err
	}
	if err := s.Ledger.RegenerateDay(ctx, patientID, now); err != nil {
		return nil, err
	}
	return created, nil
}

// List returns the patient's medications in plan order.
func (s *MedicationService) List(ctx context.Context, patientID string) ([]domain.Medication, error) {
	return s.Repo.ListMedications(ctx, s.DB, patientID)
}

// Get fetches one medication by id, scoped to its owner. Returns
// ErrMedicationNotFound when absent.
func (s *MedicationService) Get(ctx context.Context, id, patientID string) (*domain.Medication, error) {
	m, err := s.Repo.GetMedication(ctx, s.DB, id, patientID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMedicationNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Update validates and persists changes to an existing medication, then
// regenerates today's intake records. Pending records for dropped or changed
// dose times are retired by the regeneration; resolved ones survive it.
func (s *MedicationService) Update(ctx context.Context, patientID string, m domain.Medication, now time.Time) (*domain.Medication, error) {
	if err := s.validate(&m); err != nil {
		return nil, err
	}
	m.PatientID = patientID
	if err := s.Repo.UpdateMedication(ctx, s.DB, &m); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMedicationNotFound
		}
		return nil, err
	}
	if err := s.Ledger.RegenerateDay(ctx, patientID, now); err != nil {
		return nil, err
	}
	return s.Get(ctx, m.ID, patientID)
}

// Delete removes a medication from the plan and regenerates today's intake
// records. Records already resolved against the medication are preserved as
// history; only its pending records disappear.
func (s *MedicationService) Delete(ctx context.Context, id, patientID string, now time.Time) error {
	if err := s.Repo.DeleteMedication(ctx, s.DB, id, patientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMedicationNotFound
		}
		return err
	}
	return s.Ledger.RegenerateDay(ctx, patientID, now)
}

// validate enforces the plan-level invariants: a non-blank name, non-negative
// stock levels, a compartment within device capacity, and a well-formed
// schedule.
func (s *MedicationService) validate(m *domain.Medication) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return ErrEmptyName
	}
	if m.Stock < 0 {
		return fmt.Errorf("%w: stock %d", ErrInvalidStock, m.Stock)
	}
	if m.RefillReminderStock < 0 {
		return fmt.Errorf("%w: refill reminder %d", ErrInvalidStock, m.RefillReminderStock)
	}
	capacity := s.Capacity
	if capacity <= 0 {
		capacity = DefaultCompartments
	}
	if m.Compartment < 1 || m.Compartment > capacity {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidCompartment, m.Compartment, capacity)
	}
	if err := m.Schedule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return nil
}
