package device

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pildhora/go-adherence-backend/internal/domain"
	"github.com/pildhora/go-adherence-backend/internal/services"
)

// ----- Fake ledger -----

type fakeLedger struct {
	recs map[string]domain.IntakeRecord

	confirmed []string
}

func newFakeLedger(recs ...domain.IntakeRecord) *fakeLedger {
	l := &fakeLedger{recs: make(map[string]domain.IntakeRecord)}
	for _, r := range recs {
		l.recs[r.ID] = r
	}
	return l
}

func (l *fakeLedger) PendingByCompartment(ctx context.Context, patientID string, compartment int) ([]domain.IntakeRecord, error) {
	var out []domain.IntakeRecord
	for _, r := range l.recs {
		if r.PatientID == patientID && r.Compartment == compartment && r.Status == domain.IntakeStatusPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out, nil
}

func (l *fakeLedger) SetStatus(ctx context.Context, id string, status domain.IntakeStatus, method domain.IntakeMethod, now time.Time) (*domain.IntakeRecord, error) {
	rec, ok := l.recs[id]
	if !ok {
		return nil, services.ErrIntakeNotFound
	}
	if rec.Status == status {
		return &rec, nil
	}
	if rec.Status.Terminal() {
		return nil, services.ErrInvalidTransition
	}
	rec.Status = status
	rec.Method = method
	l.recs[id] = rec
	l.confirmed = append(l.confirmed, id)
	return &rec, nil
}

// ----- Helpers -----

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func pendingRec(id string, compartment int, clock string) domain.IntakeRecord {
	parsed, _ := time.Parse("15:04", clock)
	return domain.IntakeRecord{
		ID:             id,
		PatientID:      "p1",
		MedicationID:   "m-" + id,
		MedicationName: "Metformina",
		Compartment:    compartment,
		ScheduledTime:  day.Add(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute),
		Status:         domain.IntakeStatusPending,
	}
}

func newBridge(l Ledger, at time.Time) *Bridge {
	b := NewBridge(l, "p1", time.Hour, zerolog.Nop())
	b.Now = func() time.Time { return at }
	return b
}

// ----- Tests -----

func TestBridge_ConfirmsDoseInsideWindow(t *testing.T) {
	ledger := newFakeLedger(pendingRec("r1", 2, "14:00"))
	b := newBridge(ledger, day.Add(14*time.Hour+5*time.Minute))

	if err := b.HandleCompartmentOpened(context.Background(), 2); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	rec := ledger.recs["r1"]
	if rec.Status != domain.IntakeStatusTaken || rec.Method != domain.MethodDevice {
		t.Fatalf("record = %+v", rec)
	}
}

func TestBridge_WindowBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		at      time.Time
		confirm bool
	}{
		{"one second early", day.Add(14*time.Hour - time.Second), false},
		{"exactly on time", day.Add(14 * time.Hour), true},
		{"last second of window", day.Add(14*time.Hour + 59*time.Minute + 59*time.Second), true},
		{"window just elapsed", day.Add(15 * time.Hour), false},
		{"an hour late", day.Add(15*time.Hour + time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := newFakeLedger(pendingRec("r1", 1, "14:00"))
			b := newBridge(ledger, tc.at)

			if err := b.HandleCompartmentOpened(context.Background(), 1); err != nil {
				t.Fatalf("handle error: %v", err)
			}
			got := ledger.recs["r1"].Status == domain.IntakeStatusTaken
			if got != tc.confirm {
				t.Fatalf("confirmed = %v; want %v", got, tc.confirm)
			}
		})
	}
}

func TestBridge_PicksEarliestEligibleDose(t *testing.T) {
	// Two doses share the compartment: 14:00 and 14:30. At 14:35 both are
	// inside the window; the earlier one must win.
	ledger := newFakeLedger(pendingRec("early", 3, "14:00"), pendingRec("late", 3, "14:30"))
	b := newBridge(ledger, day.Add(14*time.Hour+35*time.Minute))

	if err := b.HandleCompartmentOpened(context.Background(), 3); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if ledger.recs["early"].Status != domain.IntakeStatusTaken {
		t.Fatalf("earliest dose not confirmed")
	}
	if ledger.recs["late"].Status != domain.IntakeStatusPending {
		t.Fatalf("later dose confirmed too")
	}
}

func TestBridge_ExpiredEarliestMakesEventNoOp(t *testing.T) {
	// The 08:00 dose is long expired at 14:05. The opening is ambiguous: the
	// earliest candidate cannot be confirmed, so nothing is, and both doses
	// stay pending (the stale one for the sweep to resolve).
	ledger := newFakeLedger(pendingRec("stale", 1, "08:00"), pendingRec("due", 1, "14:00"))
	b := newBridge(ledger, day.Add(14*time.Hour+5*time.Minute))

	if err := b.HandleCompartmentOpened(context.Background(), 1); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if ledger.recs["stale"].Status != domain.IntakeStatusPending {
		t.Fatalf("expired dose confirmed")
	}
	if ledger.recs["due"].Status != domain.IntakeStatusPending {
		t.Fatalf("later dose confirmed on an ambiguous opening")
	}
	if len(ledger.confirmed) != 0 {
		t.Fatalf("unexpected confirmations: %v", ledger.confirmed)
	}
}

func TestBridge_DuplicateEventIsNoOp(t *testing.T) {
	ledger := newFakeLedger(pendingRec("r1", 2, "14:00"))
	b := newBridge(ledger, day.Add(14*time.Hour+5*time.Minute))

	for i := 0; i < 3; i++ {
		if err := b.HandleCompartmentOpened(context.Background(), 2); err != nil {
			t.Fatalf("event %d error: %v", i, err)
		}
	}
	if len(ledger.confirmed) != 1 {
		t.Fatalf("confirmations = %d; want 1", len(ledger.confirmed))
	}
}

func TestBridge_IgnoresCompartmentWithNothingPending(t *testing.T) {
	ledger := newFakeLedger(pendingRec("r1", 2, "14:00"))
	b := newBridge(ledger, day.Add(14*time.Hour+5*time.Minute))

	if err := b.HandleCompartmentOpened(context.Background(), 4); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if len(ledger.confirmed) != 0 {
		t.Fatalf("unexpected confirmation: %v", ledger.confirmed)
	}
}

func TestBridge_LostRaceIsSilent(t *testing.T) {
	rec := pendingRec("r1", 2, "14:00")
	rec.Status = domain.IntakeStatusMissed // resolved between query and write
	ledger := newFakeLedger(rec)
	// Force the bridge to see it as pending anyway.
	stale := &racingLedger{fakeLedger: ledger, present: pendingRec("r1", 2, "14:00")}
	b := newBridge(stale, day.Add(14*time.Hour+5*time.Minute))

	if err := b.HandleCompartmentOpened(context.Background(), 2); err != nil {
		t.Fatalf("lost race should be silent, got %v", err)
	}
	if ledger.recs["r1"].Status != domain.IntakeStatusMissed {
		t.Fatalf("race loser overwrote resolution")
	}
}

// racingLedger reports a stale pending snapshot while SetStatus sees the
// record already resolved, emulating a manual confirmation racing the event.
type racingLedger struct {
	*fakeLedger
	present domain.IntakeRecord
}

func (l *racingLedger) PendingByCompartment(ctx context.Context, patientID string, compartment int) ([]domain.IntakeRecord, error) {
	return []domain.IntakeRecord{l.present}, nil
}
