package device

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/pildhora/go-adherence-backend/internal/domain"
	"github.com/pildhora/go-adherence-backend/internal/services"
)

// DefaultAcceptWindow is how long after its scheduled time a dose remains
// confirmable by a compartment-open event.
const DefaultAcceptWindow = time.Hour

// Ledger is the slice of the intake ledger the bridge needs.
type Ledger interface {
	PendingByCompartment(ctx context.Context, patientID string, compartment int) ([]domain.IntakeRecord, error)
	SetStatus(ctx context.Context, id string, status domain.IntakeStatus, method domain.IntakeMethod, now time.Time) (*domain.IntakeRecord, error)
}

// Bridge maps compartment-open events from the pillbox onto intake
// confirmations. It holds no event state: each event re-queries the pending
// records for its compartment, so duplicate or stale events resolve to
// no-ops instead of double confirmations.
type Bridge struct {
	// Ledger records confirmations.
	Ledger Ledger
	// PatientID is the patient the paired pillbox belongs to.
	PatientID string
	// AcceptWindow bounds how long after the scheduled time an opening
	// still confirms a dose. Zero falls back to DefaultAcceptWindow.
	AcceptWindow time.Duration
	// Now supplies wall-clock time; nil falls back to time.Now.
	Now func() time.Time
	// Log receives per-event diagnostics.
	Log zerolog.Logger
}

// NewBridge constructs a Bridge with the given ledger and patient.
func NewBridge(ledger Ledger, patientID string, window time.Duration, log zerolog.Logger) *Bridge {
	if window <= 0 {
		window = DefaultAcceptWindow
	}
	return &Bridge{Ledger: ledger, PatientID: patientID, AcceptWindow: window, Log: log}
}

// Attach subscribes the bridge to a transport's compartment-open events.
// The returned disposer detaches it. Handler errors are logged, not
// propagated; the transport callback has nowhere to return them.
func (b *Bridge) Attach(ctx context.Context, t Transport) (detach func()) {
	return t.OnCompartmentOpen(func(compartment int) {
		if err := b.HandleCompartmentOpened(ctx, compartment); err != nil {
			b.Log.Error().Err(err).Int("compartment", compartment).Msg("compartment event failed")
		}
	})
}

// HandleCompartmentOpened confirms the earliest pending dose assigned to the
// opened compartment, provided the opening falls inside the acceptance
// window: at or after the scheduled time, and before the window elapses.
// Only the earliest pending record is ever considered. When it sits outside
// the window the whole event is a no-op: an expired dose stays pending for
// the missed-dose sweep, and a later dose in the same compartment is never
// confirmed on its behalf. Openings for compartments with nothing pending
// are ignored.
func (b *Bridge) HandleCompartmentOpened(ctx context.Context, compartment int) error {
	now := time.Now()
	if b.Now != nil {
		now = b.Now()
	}
	window := b.AcceptWindow
	if window <= 0 {
		window = DefaultAcceptWindow
	}

	pending, err := b.Ledger.PendingByCompartment(ctx, b.PatientID, compartment)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		b.Log.Debug().Int("compartment", compartment).Msg("no pending dose for compartment")
		return nil
	}
	rec := pending[0]
	elapsed := now.Sub(rec.ScheduledTime)
	if elapsed < 0 || elapsed >= window {
		b.Log.Debug().
			Str("record_id", rec.ID).
			Time("scheduled", rec.ScheduledTime).
			Int("compartment", compartment).
			Msg("earliest pending dose outside acceptance window, ignoring event")
		return nil
	}

	_, err = b.Ledger.SetStatus(ctx, rec.ID, domain.IntakeStatusTaken, domain.MethodDevice, now)
	if errors.Is(err, services.ErrInvalidTransition) || errors.Is(err, services.ErrIntakeNotFound) {
		// Lost a race with a manual confirmation or a regeneration.
		b.Log.Debug().Str("record_id", rec.ID).Msg("dose already resolved, ignoring event")
		return nil
	}
	if err != nil {
		return err
	}
	b.Log.Info().
		Str("record_id", rec.ID).
		Str("medication", rec.MedicationName).
		Int("compartment", compartment).
		Msg("dose confirmed by device")
	return nil
}
