// Package services – NotifyService
//
// The notification emitter turns ledger transitions and device health
// changes into human-readable alerts for the caregiver feed. Alerts are
// best-effort by contract: the ledger never fails a status transition
// because an alert could not be stored.
//
// Emission is gated by per-patient preferences with fail-open defaults for
// safety alerts (missed dose, low stock) and fail-closed for the routine
// dose-taken confirmation.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// DefaultBatteryWarnLevel is the battery percentage below which a low-battery
// alert fires when no explicit threshold is configured.
const DefaultBatteryWarnLevel = 20

// NotificationRepo defines the repository contract required by NotifyService.
type NotificationRepo interface {
	InsertNotification(ctx context.Context, db *gorm.DB, message string, at time.Time) (*domain.Notification, error)
	ListNotifications(ctx context.Context, db *gorm.DB) ([]domain.Notification, error)
	MarkNotificationsRead(ctx context.Context, db *gorm.DB) error
	GetPreferences(ctx context.Context, db *gorm.DB, patientID string) (*domain.NotificationPreferences, error)
	SavePreferences(ctx context.Context, db *gorm.DB, p *domain.NotificationPreferences) error
}

// NotifyService emits caregiver notifications. It implements the ledger's
// TransitionSink and additionally watches device health snapshots.
//
// Device health detection is stateful: the low-battery alert is a
// level-crossing detector (one alert per dip below the threshold, re-armed
// once the level recovers to or above it) and the disconnect alert is
// edge-triggered (connected→disconnected only). Both pieces of state live in
// memory and reset on restart, which at worst repeats one alert.
type NotifyService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the notification repository.
	Repo NotificationRepo
	// Log receives structured diagnostics for dropped alerts.
	Log zerolog.Logger
	// BatteryWarnLevel is the low-battery threshold in percent. Zero falls
	// back to DefaultBatteryWarnLevel.
	BatteryWarnLevel int

	mu            sync.Mutex
	batteryWarned bool
	wasConnected  bool
}

// NewNotifyService constructs a NotifyService. warnLevel <= 0 selects
// DefaultBatteryWarnLevel.
func NewNotifyService(db *gorm.DB, repo NotificationRepo, log zerolog.Logger, warnLevel int) *NotifyService {
	if warnLevel <= 0 {
		warnLevel = DefaultBatteryWarnLevel
	}
	return &NotifyService{DB: db, Repo: repo, Log: log, BatteryWarnLevel: warnLevel}
}

// RecordTransition emits the alert matching a resolved intake record, subject
// to the patient's preferences. Implements TransitionSink.
func (s *NotifyService) RecordTransition(ctx context.Context, rec domain.IntakeRecord, now time.Time) error {
	prefs, err := s.Repo.GetPreferences(ctx, s.DB, rec.PatientID)
	if err != nil {
		return err
	}

	var msg string
	switch rec.Status {
	case domain.IntakeStatusMissed:
		if !prefs.MissedDose {
			return nil
		}
		msg = fmt.Sprintf("Se ha omitido la toma de %s de las %s.", rec.MedicationName, rec.ScheduledTime.Format("15:04"))
	case domain.IntakeStatusTaken:
		if !prefs.DoseTaken {
			return nil
		}
		msg = fmt.Sprintf("Se ha confirmado la toma de %s de las %s.", rec.MedicationName, rec.ScheduledTime.Format("15:04"))
	default:
		return nil
	}
	return s.insert(ctx, msg, now)
}

// LowStock emits a refill alert for a medication whose stock has dropped to
// its reminder level. Implements TransitionSink.
func (s *NotifyService) LowStock(ctx context.Context, med domain.Medication, now time.Time) error {
	prefs, err := s.Repo.GetPreferences(ctx, s.DB, med.PatientID)
	if err != nil {
		return err
	}
	if !prefs.LowStock {
		return nil
	}
	msg := fmt.Sprintf("Quedan pocas unidades de %s (%d restantes).", med.Name, med.Stock)
	return s.insert(ctx, msg, now)
}

// DeviceHealth inspects a device state snapshot and emits low-battery and
// disconnect alerts. Safe for concurrent use; the health poller and the
// transport's change callback may both deliver snapshots.
func (s *NotifyService) DeviceHealth(ctx context.Context, state domain.DeviceState, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wasConnected && !state.Connected {
		if err := s.insert(ctx, "El pastillero se ha desconectado.", now); err != nil {
			s.wasConnected = state.Connected
			return err
		}
	}
	s.wasConnected = state.Connected

	if !state.Connected {
		// Battery reads as zero while disconnected; keep the detector armed
		// as it was so reconnecting does not fire a spurious alert.
		return nil
	}

	warn := s.BatteryWarnLevel
	if warn <= 0 {
		warn = DefaultBatteryWarnLevel
	}
	switch {
	case state.BatteryLevel < warn && !s.batteryWarned:
		s.batteryWarned = true
		msg := fmt.Sprintf("La batería del pastillero está baja (%d%%).", state.BatteryLevel)
		if err := s.insert(ctx, msg, now); err != nil {
			s.batteryWarned = false
			return err
		}
	case state.BatteryLevel >= warn:
		s.batteryWarned = false
	}
	return nil
}

// List returns every notification, newest first.
func (s *NotifyService) List(ctx context.Context) ([]domain.Notification, error) {
	return s.Repo.ListNotifications(ctx, s.DB)
}

// MarkAllRead flags every unread notification as read.
func (s *NotifyService) MarkAllRead(ctx context.Context) error {
	return s.Repo.MarkNotificationsRead(ctx, s.DB)
}

// Preferences returns the patient's notification preferences, falling back
// to the defaults when none were ever saved.
func (s *NotifyService) Preferences(ctx context.Context, patientID string) (*domain.NotificationPreferences, error) {
	return s.Repo.GetPreferences(ctx, s.DB, patientID)
}

// SavePreferences upserts the patient's notification preferences.
func (s *NotifyService) SavePreferences(ctx context.Context, patientID string, p domain.NotificationPreferences) (*domain.NotificationPreferences, error) {
	p.PatientID = patientID
	if err := s.Repo.SavePreferences(ctx, s.DB, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *NotifyService) insert(ctx context.Context, msg string, at time.Time) error {
	if _, err := s.Repo.InsertNotification(ctx, s.DB, msg, at); err != nil {
		s.Log.Error().Err(err).Str("message", msg).Msg("notification dropped")
		return err
	}
	return nil
}
