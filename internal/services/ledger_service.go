// Package services – LedgerService
//
// This file implements the intake ledger: the authoritative set of per-day,
// per-dose intake records derived from medication schedules. It owns the two
// operations everything else hangs off:
//
//   - regeneration: recomputing "today's" records from the current
//     medication plans, reconciled against statuses already recorded, and
//   - status transitions: moving a record out of pending exactly once per
//     real-world dose event (manual confirmation, device confirmation, or
//     the missed-dose sweep).
//
// The ledger is the single writer for intake records. All mutating entry
// points serialize through one mutex so an asynchronous device confirmation
// and a manual confirmation targeting the same record cannot interleave; the
// loser of such a race observes the record already resolved and no-ops.
//
// Wall-clock time is always supplied by the caller. The day boundary is
// evaluated per call (the app may run across midnight) and never cached.
package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// IntakeRepo defines the repository contract required by LedgerService.
type IntakeRepo interface {
	// ListIntakeHistory returns every record for a patient, oldest first.
	ListIntakeHistory(ctx context.Context, db *gorm.DB, patientID string) ([]domain.IntakeRecord, error)

	// ListIntakeDay returns a patient's records scheduled in [dayStart, dayEnd).
	ListIntakeDay(ctx context.Context, db *gorm.DB, patientID string, dayStart, dayEnd time.Time) ([]domain.IntakeRecord, error)

	// GetIntakeRecord fetches one record by id.
	GetIntakeRecord(ctx context.Context, db *gorm.DB, id string) (*domain.IntakeRecord, error)

	// ListPendingByCompartment returns pending records for a pillbox slot,
	// earliest scheduled time first.
	ListPendingByCompartment(ctx context.Context, db *gorm.DB, patientID string, compartment int) ([]domain.IntakeRecord, error)

	// ListPendingBefore returns all pending records scheduled before cutoff.
	ListPendingBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.IntakeRecord, error)

	// ReplaceIntakeRecords atomically deletes the records named by drop and
	// inserts recs, skipping ids that already exist.
	ReplaceIntakeRecords(ctx context.Context, db *gorm.DB, drop []string, recs []domain.IntakeRecord) error

	// UpdateIntakeStatus persists a status/method change.
	UpdateIntakeStatus(ctx context.Context, db *gorm.DB, id string, status domain.IntakeStatus, method domain.IntakeMethod) error
}

// MedicationReader is the slice of the medication repository the ledger needs:
// the current plan for regeneration and stock bookkeeping on confirmation.
type MedicationReader interface {
	ListMedications(ctx context.Context, db *gorm.DB, patientID string) ([]domain.Medication, error)
	DecrementStock(ctx context.Context, db *gorm.DB, id string) (*domain.Medication, error)
}

// TransitionSink receives ledger events after they are durably recorded.
// The notification emitter implements it; errors from the sink are ignored by
// the ledger (alerts are best-effort and must never roll back a transition).
type TransitionSink interface {
	// RecordTransition is invoked once per successful pending→terminal
	// transition. rec carries the new status and method; the previous status
	// was necessarily pending, since resolved records never transition again.
	RecordTransition(ctx context.Context, rec domain.IntakeRecord, now time.Time) error

	// LowStock is invoked when a confirmed dose drops a medication's stock
	// exactly to its refill reminder level.
	LowStock(ctx context.Context, med domain.Medication, now time.Time) error
}

// LedgerService owns intake records and their status transitions.
type LedgerService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Intakes is the intake record repository.
	Intakes IntakeRepo
	// Meds supplies the current medication plan and stock updates.
	Meds MedicationReader
	// Sink receives transition events; may be nil.
	Sink TransitionSink

	mu sync.Mutex
}

// NewLedgerService constructs a LedgerService with the given collaborators.
func NewLedgerService(db *gorm.DB, intakes IntakeRepo, meds MedicationReader, sink TransitionSink) *LedgerService {
	return &LedgerService{DB: db, Intakes: intakes, Meds: meds, Sink: sink}
}

// History regenerates today's records for the patient and returns the full
// intake history, oldest first. now supplies the day boundary.
func (s *LedgerService) History(ctx context.Context, patientID string, now time.Time) ([]domain.IntakeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.regenerateLocked(ctx, patientID, now); err != nil {
		return nil, err
	}
	return s.Intakes.ListIntakeHistory(ctx, s.DB, patientID)
}

// RegenerateDay recomputes today's records for the patient. It is invoked
// after every medication create/update/delete and on every history fetch.
// Calling it twice with the same inputs is a no-op the second time.
func (s *LedgerService) RegenerateDay(ctx context.Context, patientID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regenerateLocked(ctx, patientID, now)
}

// regenerateLocked implements the reconciliation algorithm. Caller holds mu.
//
// Rules, in order:
//  1. Records outside today are never touched.
//  2. A resolved (taken/missed) record from today is always carried over
//     unchanged, even when its medication or dose time no longer exists.
//     A confirmed dose outcome is an audit fact, not derived state.
//  3. A pending record whose slot still exists with an identical snapshot is
//     kept as is.
//  4. Every other active (medication, time) slot gets a fresh pending record
//     with the medication snapshot of this moment.
//  5. Pending records whose slot disappeared or whose snapshot went stale
//     are dropped.
func (s *LedgerService) regenerateLocked(ctx context.Context, patientID string, now time.Time) error {
	dayStart := startOfDay(now)
	dayEnd := dayStart.AddDate(0, 0, 1)

	meds, err := s.Meds.ListMedications(ctx, s.DB, patientID)
	if err != nil {
		return err
	}
	existing, err := s.Intakes.ListIntakeDay(ctx, s.DB, patientID, dayStart, dayEnd)
	if err != nil {
		return err
	}

	desired := make(map[string]domain.IntakeRecord)
	for _, m := range meds {
		for _, clock := range m.Schedule.DosesFor(dayStart) {
			id := domain.IntakeID(m.ID, dayStart, clock)
			desired[id] = domain.IntakeRecord{
				ID:             id,
				PatientID:      m.PatientID,
				MedicationID:   m.ID,
				MedicationName: m.Name,
				Dosage:         m.Dosage,
				Compartment:    m.Compartment,
				ScheduledTime:  clockOn(dayStart, clock),
				Status:         domain.IntakeStatusPending,
			}
		}
	}

	kept := make(map[string]struct{}, len(existing))
	var drop []string
	for _, ex := range existing {
		if ex.Status.Terminal() {
			kept[ex.ID] = struct{}{}
			continue
		}
		if want, ok := desired[ex.ID]; ok && sameSlot(ex, want) {
			kept[ex.ID] = struct{}{}
			continue
		}
		drop = append(drop, ex.ID)
	}

	var inserts []domain.IntakeRecord
	for id, rec := range desired {
		if _, ok := kept[id]; !ok {
			inserts = append(inserts, rec)
		}
	}
	sort.Slice(inserts, func(i, j int) bool { return inserts[i].ID < inserts[j].ID })

	if len(drop) == 0 && len(inserts) == 0 {
		return nil
	}
	return s.Intakes.ReplaceIntakeRecords(ctx, s.DB, drop, inserts)
}

// SetStatus moves a record out of pending.
//
// Guards:
//   - unknown status values fail with ErrInvalidStatus,
//   - transitions to pending fail with ErrInvalidTransition,
//   - a record already holding the requested terminal status is returned
//     unchanged (idempotent, no re-notification),
//   - crossing one terminal status to the other fails with
//     ErrInvalidTransition: each slot is resolved exactly once.
//
// On success the record is persisted first; only then is the sink notified
// and, for confirmations, the medication stock decremented (best effort,
// the medication may have been deleted after the record was generated).
func (s *LedgerService) SetStatus(ctx context.Context, id string, status domain.IntakeStatus, method domain.IntakeMethod, now time.Time) (*domain.IntakeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStatusLocked(ctx, id, status, method, now)
}

func (s *LedgerService) setStatusLocked(ctx context.Context, id string, status domain.IntakeStatus, method domain.IntakeMethod, now time.Time) (*domain.IntakeRecord, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if !status.Terminal() {
		return nil, ErrInvalidTransition
	}

	rec, err := s.Intakes.GetIntakeRecord(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntakeNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Status == status {
		return rec, nil
	}
	if rec.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	if err := s.Intakes.UpdateIntakeStatus(ctx, s.DB, id, status, method); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntakeNotFound
		}
		return nil, err
	}

	rec.Status = status
	rec.Method = method

	if status == domain.IntakeStatusTaken {
		if med, derr := s.Meds.DecrementStock(ctx, s.DB, rec.MedicationID); derr == nil {
			if s.Sink != nil && med.Stock == med.RefillReminderStock {
				_ = s.Sink.LowStock(ctx, *med, now)
			}
		}
	}
	if s.Sink != nil {
		_ = s.Sink.RecordTransition(ctx, *rec, now)
	}
	return rec, nil
}

// PendingByCompartment returns the patient's pending records for a pillbox
// compartment, earliest first. Read-only; used by the device event bridge to
// pick its confirmation candidate.
func (s *LedgerService) PendingByCompartment(ctx context.Context, patientID string, compartment int) ([]domain.IntakeRecord, error) {
	return s.Intakes.ListPendingByCompartment(ctx, s.DB, patientID, compartment)
}

// MarkMissedBefore resolves every pending record scheduled before cutoff as
// missed. The sweep scheduler calls this periodically; cutoff is normally
// now minus the device acceptance window, so a dose stays confirmable by a
// compartment-open event for the whole window before it is written off.
//
// Swept records carry no method tag since no actor resolved them.
func (s *LedgerService) MarkMissedBefore(ctx context.Context, cutoff, now time.Time) ([]domain.IntakeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.Intakes.ListPendingBefore(ctx, s.DB, cutoff)
	if err != nil {
		return nil, err
	}
	var swept []domain.IntakeRecord
	for _, p := range pending {
		rec, err := s.setStatusLocked(ctx, p.ID, domain.IntakeStatusMissed, "", now)
		if err != nil {
			return swept, err
		}
		swept = append(swept, *rec)
	}
	return swept, nil
}

// sameSlot reports whether an existing pending record still matches the
// snapshot a regeneration would produce for its slot. A mismatch (renamed
// medication, changed dosage or compartment) retires the stale record in
// favor of a fresh one.
func sameSlot(a, b domain.IntakeRecord) bool {
	return a.MedicationName == b.MedicationName &&
		a.Dosage == b.Dosage &&
		a.Compartment == b.Compartment &&
		a.ScheduledTime.Equal(b.ScheduledTime)
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// clockOn combines a day with a normalized "HH:MM" clock string.
func clockOn(day time.Time, clock string) time.Time {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location())
}
