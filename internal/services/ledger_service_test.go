package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// ----- Fakes -----

type fakeIntakeRepo struct {
	recs map[string]domain.IntakeRecord

	replaceCalls int
	updateCalls  int
	updateErr    error
}

func newFakeIntakeRepo(seed ...domain.IntakeRecord) *fakeIntakeRepo {
	r := &fakeIntakeRepo{recs: make(map[string]domain.IntakeRecord)}
	for _, rec := range seed {
		r.recs[rec.ID] = rec
	}
	return r
}

func (r *fakeIntakeRepo) sorted(filter func(domain.IntakeRecord) bool) []domain.IntakeRecord {
	var out []domain.IntakeRecord
	for _, rec := range r.recs {
		if filter(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out
}

func (r *fakeIntakeRepo) ListIntakeHistory(ctx context.Context, db *gorm.DB, patientID string) ([]domain.IntakeRecord, error) {
	return r.sorted(func(rec domain.IntakeRecord) bool { return rec.PatientID == patientID }), nil
}

func (r *fakeIntakeRepo) ListIntakeDay(ctx context.Context, db *gorm.DB, patientID string, dayStart, dayEnd time.Time) ([]domain.IntakeRecord, error) {
	return r.sorted(func(rec domain.IntakeRecord) bool {
		return rec.PatientID == patientID &&
			!rec.ScheduledTime.Before(dayStart) && rec.ScheduledTime.Before(dayEnd)
	}), nil
}

func (r *fakeIntakeRepo) GetIntakeRecord(ctx context.Context, db *gorm.DB, id string) (*domain.IntakeRecord, error) {
	rec, ok := r.recs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &rec, nil
}

func (r *fakeIntakeRepo) ListPendingByCompartment(ctx context.Context, db *gorm.DB, patientID string, compartment int) ([]domain.IntakeRecord, error) {
	return r.sorted(func(rec domain.IntakeRecord) bool {
		return rec.PatientID == patientID && rec.Compartment == compartment &&
			rec.Status == domain.IntakeStatusPending
	}), nil
}

func (r *fakeIntakeRepo) ListPendingBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.IntakeRecord, error) {
	return r.sorted(func(rec domain.IntakeRecord) bool {
		return rec.Status == domain.IntakeStatusPending && rec.ScheduledTime.Before(cutoff)
	}), nil
}

func (r *fakeIntakeRepo) ReplaceIntakeRecords(ctx context.Context, db *gorm.DB, drop []string, recs []domain.IntakeRecord) error {
	r.replaceCalls++
	for _, id := range drop {
		delete(r.recs, id)
	}
	for _, rec := range recs {
		if _, exists := r.recs[rec.ID]; !exists {
			r.recs[rec.ID] = rec
		}
	}
	return nil
}

func (r *fakeIntakeRepo) UpdateIntakeStatus(ctx context.Context, db *gorm.DB, id string, status domain.IntakeStatus, method domain.IntakeMethod) error {
	r.updateCalls++
	if r.updateErr != nil {
		return r.updateErr
	}
	rec, ok := r.recs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	rec.Status = status
	rec.Method = method
	r.recs[id] = rec
	return nil
}

type fakeMedReader struct {
	meds []domain.Medication

	decremented []string
}

func (r *fakeMedReader) ListMedications(ctx context.Context, db *gorm.DB, patientID string) ([]domain.Medication, error) {
	var out []domain.Medication
	for _, m := range r.meds {
		if m.PatientID == patientID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMedReader) DecrementStock(ctx context.Context, db *gorm.DB, id string) (*domain.Medication, error) {
	for i := range r.meds {
		if r.meds[i].ID == id {
			if r.meds[i].Stock > 0 {
				r.meds[i].Stock--
			}
			r.decremented = append(r.decremented, id)
			m := r.meds[i]
			return &m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeSink struct {
	transitions []domain.IntakeRecord
	lowStock    []domain.Medication
}

func (s *fakeSink) RecordTransition(ctx context.Context, rec domain.IntakeRecord, now time.Time) error {
	s.transitions = append(s.transitions, rec)
	return nil
}

func (s *fakeSink) LowStock(ctx context.Context, med domain.Medication, now time.Time) error {
	s.lowStock = append(s.lowStock, med)
	return nil
}

// ----- Helpers -----

// Monday 2025-06-02, mid-morning UTC.
var testNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func dailyMed(id, name string, compartment int, times ...string) domain.Medication {
	return domain.Medication{
		ID:                  id,
		PatientID:           "p1",
		Name:                name,
		Dosage:              "500mg",
		Stock:               10,
		RefillReminderStock: 5,
		Compartment:         compartment,
		Schedule: domain.Schedule{
			Frequency: domain.FrequencyDaily,
			Times:     domain.ClockTimes(times),
		},
	}
}

func at(clock string) time.Time {
	parsed, _ := time.Parse("15:04", clock)
	return time.Date(2025, 6, 2, parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
}

// ----- Regeneration -----

func TestRegenerateDay_CreatesPendingRecords(t *testing.T) {
	intakes := newFakeIntakeRepo()
	meds := &fakeMedReader{meds: []domain.Medication{dailyMed("m1", "Metformina", 1, "08:00", "14:00")}}
	s := NewLedgerService(nil, intakes, meds, nil)

	if err := s.RegenerateDay(context.Background(), "p1", testNow); err != nil {
		t.Fatalf("RegenerateDay error: %v", err)
	}
	if len(intakes.recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(intakes.recs))
	}
	id := domain.IntakeID("m1", testNow, "08:00")
	rec, ok := intakes.recs[id]
	if !ok {
		t.Fatalf("record %q missing", id)
	}
	if rec.Status != domain.IntakeStatusPending {
		t.Fatalf("status = %q; want pending", rec.Status)
	}
	if rec.MedicationName != "Metformina" || rec.Compartment != 1 {
		t.Fatalf("snapshot not copied: %+v", rec)
	}
	if !rec.ScheduledTime.Equal(at("08:00")) {
		t.Fatalf("scheduled = %v; want %v", rec.ScheduledTime, at("08:00"))
	}
}

func TestRegenerateDay_SecondRunIsNoOp(t *testing.T) {
	intakes := newFakeIntakeRepo()
	meds := &fakeMedReader{meds: []domain.Medication{dailyMed("m1", "Metformina", 1, "08:00")}}
	s := NewLedgerService(nil, intakes, meds, nil)

	for i := 0; i < 2; i++ {
		if err := s.RegenerateDay(context.Background(), "p1", testNow); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if intakes.replaceCalls != 1 {
		t.Fatalf("expected 1 replace call, got %d", intakes.replaceCalls)
	}
	if len(intakes.recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(intakes.recs))
	}
}

func TestRegenerateDay_PreservesResolvedRecords(t *testing.T) {
	taken := domain.IntakeRecord{
		ID:             domain.IntakeID("m1", testNow, "08:00"),
		PatientID:      "p1",
		MedicationID:   "m1",
		MedicationName: "Nombre Viejo", // renamed since this was resolved
		Compartment:    1,
		ScheduledTime:  at("08:00"),
		Status:         domain.IntakeStatusTaken,
		Method:         domain.MethodManual,
	}
	orphan := domain.IntakeRecord{
		ID:             domain.IntakeID("gone", testNow, "09:00"),
		PatientID:      "p1",
		MedicationID:   "gone", // medication deleted after confirmation
		MedicationName: "Ibuprofeno",
		Compartment:    2,
		ScheduledTime:  at("09:00"),
		Status:         domain.IntakeStatusMissed,
	}
	intakes := newFakeIntakeRepo(taken, orphan)
	meds := &fakeMedReader{meds: []domain.Medication{dailyMed("m1", "Metformina", 1, "08:00", "14:00")}}
	s := NewLedgerService(nil, intakes, meds, nil)

	if err := s.RegenerateDay(context.Background(), "p1", testNow); err != nil {
		t.Fatalf("RegenerateDay error: %v", err)
	}
	got, ok := intakes.recs[taken.ID]
	if !ok || got.Status != domain.IntakeStatusTaken || got.MedicationName != "Nombre Viejo" {
		t.Fatalf("resolved record not preserved verbatim: %+v (present=%v)", got, ok)
	}
	if _, ok := intakes.recs[orphan.ID]; !ok {
		t.Fatalf("orphaned resolved record was dropped")
	}
	if len(intakes.recs) != 3 { // taken 08:00 + orphan + fresh pending 14:00
		t.Fatalf("expected 3 records, got %d", len(intakes.recs))
	}
}

func TestRegenerateDay_ReplacesStaleSnapshotPending(t *testing.T) {
	stale := domain.IntakeRecord{
		ID:             domain.IntakeID("m1", testNow, "08:00"),
		PatientID:      "p1",
		MedicationID:   "m1",
		MedicationName: "Nombre Viejo",
		Compartment:    1,
		ScheduledTime:  at("08:00"),
		Status:         domain.IntakeStatusPending,
	}
	intakes := newFakeIntakeRepo(stale)
	meds := &fakeMedReader{meds: []domain.Medication{dailyMed("m1", "Metformina", 1, "08:00")}}
	s := NewLedgerService(nil, intakes, meds, nil)

	if err := s.RegenerateDay(context.Background(), "p1", testNow); err != nil {
		t.Fatalf("RegenerateDay error: %v", err)
	}
	rec := intakes.recs[stale.ID]
	if rec.MedicationName != "Metformina" {
		t.Fatalf("pending snapshot not refreshed: %q", rec.MedicationName)
	}
	if rec.Status != domain.IntakeStatusPending {
		t.Fatalf("status = %q; want pending", rec.Status)
	}
}

func TestRegenerateDay_DropsPendingForRemovedTime(t *testing.T) {
	obsolete := domain.IntakeRecord{
		ID:             domain.IntakeID("m1", testNow, "20:00"),
		PatientID:      "p1",
		MedicationID:   "m1",
		MedicationName: "Metformina",
		Compartment:    1,
		ScheduledTime:  at("20:00"),
		Status:         domain.IntakeStatusPending,
	}
	intakes := newFakeIntakeRepo(obsolete)
	meds := &fakeMedReader{meds: []domain.Medication{dailyMed("m1", "Metformina", 1, "08:00")}}
	s := NewLedgerService(nil, intakes, meds, nil)

	if err := s.RegenerateDay(context.Background(), "p1", testNow); err != nil {
		t.Fatalf("RegenerateDay error: %v", err)
	}
	if _, ok := intakes.recs[obsolete.ID]; ok {
		t.Fatalf("obsolete pending record survived regeneration")
	}
	if _, ok := intakes.recs[domain.IntakeID("m1", testNow, "08:00")]; !ok {
		t.Fatalf("fresh pending record missing")
	}
}

// ----- Status transitions -----

func seedPending(stock int) (*fakeIntakeRepo, *fakeMedReader, *fakeSink, string) {
	m := dailyMed("m1", "Metformina", 1, "08:00")
	m.Stock = stock
	id := domain.IntakeID("m1", testNow, "08:00")
	rec := domain.IntakeRecord{
		ID:             id,
		PatientID:      "p1",
		MedicationID:   "m1",
		MedicationName: m.Name,
		Compartment:    1,
		ScheduledTime:  at("08:00"),
		Status:         domain.IntakeStatusPending,
	}
	return newFakeIntakeRepo(rec), &fakeMedReader{meds: []domain.Medication{m}}, &fakeSink{}, id
}

func TestSetStatus_TakenDecrementsStockAndNotifies(t *testing.T) {
	intakes, meds, sink, id := seedPending(10)
	s := NewLedgerService(nil, intakes, meds, sink)

	rec, err := s.SetStatus(context.Background(), id, domain.IntakeStatusTaken, domain.MethodDevice, testNow)
	if err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if rec.Status != domain.IntakeStatusTaken || rec.Method != domain.MethodDevice {
		t.Fatalf("record = %+v", rec)
	}
	if len(meds.decremented) != 1 {
		t.Fatalf("stock not decremented")
	}
	if len(sink.transitions) != 1 || sink.transitions[0].Status != domain.IntakeStatusTaken {
		t.Fatalf("sink transitions = %+v", sink.transitions)
	}
	if len(sink.lowStock) != 0 {
		t.Fatalf("unexpected low-stock alert at stock 9")
	}
}

func TestSetStatus_LowStockFiresAtReminderLevel(t *testing.T) {
	intakes, meds, sink, id := seedPending(6) // 6 -> 5 == reminder level
	s := NewLedgerService(nil, intakes, meds, sink)

	if _, err := s.SetStatus(context.Background(), id, domain.IntakeStatusTaken, domain.MethodManual, testNow); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if len(sink.lowStock) != 1 {
		t.Fatalf("expected 1 low-stock alert, got %d", len(sink.lowStock))
	}
	if sink.lowStock[0].Stock != 5 {
		t.Fatalf("alert stock = %d; want 5", sink.lowStock[0].Stock)
	}
}

func TestSetStatus_SameTerminalStatusIsNoOp(t *testing.T) {
	intakes, meds, sink, id := seedPending(10)
	s := NewLedgerService(nil, intakes, meds, sink)

	if _, err := s.SetStatus(context.Background(), id, domain.IntakeStatusTaken, domain.MethodDevice, testNow); err != nil {
		t.Fatalf("first SetStatus error: %v", err)
	}
	rec, err := s.SetStatus(context.Background(), id, domain.IntakeStatusTaken, domain.MethodManual, testNow)
	if err != nil {
		t.Fatalf("repeat SetStatus error: %v", err)
	}
	if rec.Method != domain.MethodDevice {
		t.Fatalf("repeat overwrote method: %q", rec.Method)
	}
	if intakes.updateCalls != 1 {
		t.Fatalf("repeat hit the repo: %d updates", intakes.updateCalls)
	}
	if len(sink.transitions) != 1 || len(meds.decremented) != 1 {
		t.Fatalf("repeat re-notified or re-decremented")
	}
}

func TestSetStatus_RejectsCrossTerminal(t *testing.T) {
	intakes, meds, sink, id := seedPending(10)
	s := NewLedgerService(nil, intakes, meds, sink)

	if _, err := s.SetStatus(context.Background(), id, domain.IntakeStatusMissed, "", testNow); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if _, err := s.SetStatus(context.Background(), id, domain.IntakeStatusTaken, domain.MethodDevice, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if intakes.recs[id].Status != domain.IntakeStatusMissed {
		t.Fatalf("missed record overwritten")
	}
}

func TestSetStatus_RejectsPendingAndUnknownTargets(t *testing.T) {
	intakes, meds, sink, id := seedPending(10)
	s := NewLedgerService(nil, intakes, meds, sink)

	if _, err := s.SetStatus(context.Background(), id, domain.IntakeStatusPending, "", testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending target: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.SetStatus(context.Background(), id, domain.IntakeStatus("BOGUS"), "", testNow); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("unknown target: expected ErrInvalidStatus, got %v", err)
	}
	if _, err := s.SetStatus(context.Background(), "nope", domain.IntakeStatusTaken, "", testNow); !errors.Is(err, ErrIntakeNotFound) {
		t.Fatalf("missing id: expected ErrIntakeNotFound, got %v", err)
	}
}

// ----- Sweep -----

func TestMarkMissedBefore_SweepsOnlyOverdue(t *testing.T) {
	early := domain.IntakeRecord{
		ID: domain.IntakeID("m1", testNow, "08:00"), PatientID: "p1", MedicationID: "m1",
		MedicationName: "Metformina", Compartment: 1,
		ScheduledTime: at("08:00"), Status: domain.IntakeStatusPending,
	}
	late := domain.IntakeRecord{
		ID: domain.IntakeID("m1", testNow, "09:30"), PatientID: "p1", MedicationID: "m1",
		MedicationName: "Metformina", Compartment: 1,
		ScheduledTime: at("09:30"), Status: domain.IntakeStatusPending,
	}
	intakes := newFakeIntakeRepo(early, late)
	sink := &fakeSink{}
	s := NewLedgerService(nil, intakes, &fakeMedReader{}, sink)

	swept, err := s.MarkMissedBefore(context.Background(), at("09:00"), testNow)
	if err != nil {
		t.Fatalf("MarkMissedBefore error: %v", err)
	}
	if len(swept) != 1 || swept[0].ID != early.ID {
		t.Fatalf("swept = %+v", swept)
	}
	if swept[0].Method != "" {
		t.Fatalf("swept record carries method %q; want empty", swept[0].Method)
	}
	if intakes.recs[early.ID].Status != domain.IntakeStatusMissed {
		t.Fatalf("overdue record not missed")
	}
	if intakes.recs[late.ID].Status != domain.IntakeStatusPending {
		t.Fatalf("in-window record swept early")
	}
	if len(sink.transitions) != 1 {
		t.Fatalf("expected 1 transition event, got %d", len(sink.transitions))
	}
}

// ----- History -----

func TestHistory_RegeneratesThenLists(t *testing.T) {
	intakes := newFakeIntakeRepo()
	meds := &fakeMedReader{meds: []domain.Medication{dailyMed("m1", "Metformina", 1, "14:00", "08:00")}}
	s := NewLedgerService(nil, intakes, meds, nil)

	out, err := s.History(context.Background(), "p1", testNow)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if !out[0].ScheduledTime.Before(out[1].ScheduledTime) {
		t.Fatalf("history not in chronological order")
	}
}
