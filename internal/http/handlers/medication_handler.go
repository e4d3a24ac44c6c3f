// Medication HTTP handlers.
//
// This file exposes REST endpoints for the medication plan:
//   - POST   /medications        (create)
//   - GET    /medications        (list)
//   - GET    /medications/{id}   (fetch)
//   - PUT    /medications/{id}   (update)
//   - DELETE /medications/{id}   (delete)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Every plan mutation implicitly
// regenerates today's intake records inside the service layer.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pildhora/go-adherence-backend/internal/domain"
	"github.com/pildhora/go-adherence-backend/internal/services"
	"github.com/pildhora/go-adherence-backend/internal/sysutil"
)

//
// Service contracts (context-aware)
//

// MedicationService defines medication plan operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MedicationService interface {
	// Create validates and stores a new medication for the patient.
	Create(ctx context.Context, patientID string, m domain.Medication, now time.Time) (*domain.Medication, error)
	// List returns the patient's medications in plan order.
	List(ctx context.Context, patientID string) ([]domain.Medication, error)
	// Get fetches one medication owned by the patient.
	Get(ctx context.Context, id, patientID string) (*domain.Medication, error)
	// Update persists changes to an existing medication.
	Update(ctx context.Context, patientID string, m domain.Medication, now time.Time) (*domain.Medication, error)
	// Delete removes a medication from the plan.
	Delete(ctx context.Context, id, patientID string, now time.Time) error
}

// LedgerService defines the intake ledger operations consumed by HTTP
// handlers.
type LedgerService interface {
	// History regenerates today's records and returns the full history.
	History(ctx context.Context, patientID string, now time.Time) ([]domain.IntakeRecord, error)
	// SetStatus resolves a pending intake record.
	SetStatus(ctx context.Context, id string, status domain.IntakeStatus, method domain.IntakeMethod, now time.Time) (*domain.IntakeRecord, error)
}

// TaskService defines caregiver task operations consumed by HTTP handlers.
type TaskService interface {
	Create(ctx context.Context, caregiverID string, t domain.Task) (*domain.Task, error)
	List(ctx context.Context, caregiverID string) ([]domain.Task, error)
	Get(ctx context.Context, id, caregiverID string) (*domain.Task, error)
	Update(ctx context.Context, caregiverID string, t domain.Task) (*domain.Task, error)
	Delete(ctx context.Context, id, caregiverID string) error
}

// NotificationService defines the caregiver notification feed operations
// consumed by HTTP handlers.
type NotificationService interface {
	List(ctx context.Context) ([]domain.Notification, error)
	MarkAllRead(ctx context.Context) error
	Preferences(ctx context.Context, patientID string) (*domain.NotificationPreferences, error)
	SavePreferences(ctx context.Context, patientID string, p domain.NotificationPreferences) (*domain.NotificationPreferences, error)
}

// DeviceController defines the pillbox operations consumed by HTTP handlers.
// In this deployment it is backed by the device simulator; the compartment
// injection endpoint stands in for the patient opening a physical lid.
type DeviceController interface {
	Scan(ctx context.Context) ([]domain.PillboxDevice, error)
	Connect(ctx context.Context, deviceID string) error
	Disconnect()
	State() domain.DeviceState
	OpenCompartment(compartment int) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for medications, intakes, tasks,
// notifications, and the device. It depends on abstract service interfaces
// to keep transport concerns separate from business logic.
type Handlers struct {
	medSvc    MedicationService
	ledgerSvc LedgerService
	taskSvc   TaskService
	notifySvc NotificationService
	deviceSvc DeviceController
}

// New constructs a Handlers instance bound to the given services.
func New(medSvc MedicationService, ledgerSvc LedgerService, taskSvc TaskService, notifySvc NotificationService, deviceSvc DeviceController) *Handlers {
	return &Handlers{
		medSvc:    medSvc,
		ledgerSvc: ledgerSvc,
		taskSvc:   taskSvc,
		notifySvc: notifySvc,
		deviceSvc: deviceSvc,
	}
}

// patientID extracts the patient id from Gin context (set by upstream
// middleware). If absent, it falls back to the "X-Patient-ID" header (tests
// use it), and finally to "patient-demo". It never touches c.Request if it's
// nil.
func patientID(c *gin.Context) string {
	var fromCtx, fromHeader string
	if v, ok := c.Get("patientID"); ok {
		fromCtx, _ = v.(string)
	}
	if c != nil && c.Request != nil {
		fromHeader = c.GetHeader("X-Patient-ID")
	}
	return sysutil.FirstNonEmpty(fromCtx, fromHeader, "patient-demo")
}

// caregiverID mirrors patientID for the caregiver-facing endpoints, backed
// by the "X-Caregiver-ID" header with a "caregiver-demo" fallback.
func caregiverID(c *gin.Context) string {
	var fromCtx, fromHeader string
	if v, ok := c.Get("caregiverID"); ok {
		fromCtx, _ = v.(string)
	}
	if c != nil && c.Request != nil {
		fromHeader = c.GetHeader("X-Caregiver-ID")
	}
	return sysutil.FirstNonEmpty(fromCtx, fromHeader, "caregiver-demo")
}

//
// DTOs
//

// MedicationRequest is the JSON payload for creating or updating a
// medication.
type MedicationRequest struct {
	// Name of the medication (required).
	Name string `json:"name" binding:"required" example:"Metformina"`
	// Dosage as a free-form label shown to the patient.
	Dosage string `json:"dosage" example:"500mg"`
	// Stock is the current number of units on hand.
	Stock int `json:"stock" example:"30"`
	// RefillReminderStock triggers a low-stock alert when reached.
	RefillReminderStock int `json:"refill_reminder_stock"`
	// Compartment is the pillbox slot (1-based).
	Compartment int `json:"compartment" binding:"required" example:"2"`
	// RefillDueDate is the next scheduled refill.
	RefillDueDate time.Time `json:"refill_due_date"`
	// Schedule describes when doses are due.
	Schedule domain.Schedule `json:"schedule"`
}

func (r MedicationRequest) model(id string) domain.Medication {
	return domain.Medication{
		ID:                  id,
		Name:                r.Name,
		Dosage:              r.Dosage,
		Stock:               r.Stock,
		RefillReminderStock: r.RefillReminderStock,
		Compartment:         r.Compartment,
		RefillDueDate:       r.RefillDueDate,
		Schedule:            r.Schedule,
	}
}

// medFail maps medication service sentinels onto HTTP status and error code.
func medFail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyName):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "medication name is required")
	case errors.Is(err, services.ErrInvalidStock):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidCompartment):
		fail(c, http.StatusBadRequest, ErrCodeInvalidCompartment, err.Error())
	case errors.Is(err, services.ErrInvalidSchedule):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSchedule, err.Error())
	case errors.Is(err, services.ErrMedicationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "medication not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handlers
//

// CreateMedication godoc
// @ID          createMedication
// @Summary     Add a medication to the plan
// @Description Creates a medication for the current patient and regenerates today's intake records.
// @Tags        Medications
// @Accept      json
// @Produce     json
//
// @Param       X-Patient-ID  header  string  false "Patient ID (demo header)"  example(patient123)
// @Param       body          body    handlers.MedicationRequest  true  "Medication payload"
//
// @Success     201  {object}  domain.Medication
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /medications [post]
func (h *Handlers) CreateMedication(c *gin.Context) {
	var req MedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	created, err := h.medSvc.Create(c.Request.Context(), patientID(c), req.model(""), time.Now())
	if err != nil {
		medFail(c, err)
		return
	}
	ok(c, http.StatusCreated, created)
}

// ListMedications godoc
// @ID          listMedications
// @Summary     List the medication plan
// @Description Returns every medication of the current patient in plan order.
// @Tags        Medications
// @Produce     json
//
// @Param       X-Patient-ID  header  string  false "Patient ID (demo header)"  example(patient123)
//
// @Success     200  {array}   domain.Medication
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /medications [get]
func (h *Handlers) ListMedications(c *gin.Context) {
	items, err := h.medSvc.List(c.Request.Context(), patientID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if items == nil {
		items = []domain.Medication{}
	}
	ok(c, http.StatusOK, items)
}

// GetMedication godoc
// @ID          getMedication
// @Summary     Fetch one medication
// @Tags        Medications
// @Produce     json
//
// @Param       X-Patient-ID  header  string  false "Patient ID (demo header)"  example(patient123)
// @Param       id            path    string  true  "Medication ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Medication
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Medication not found"
// @Router      /medications/{id} [get]
func (h *Handlers) GetMedication(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "medication id must be a UUID")
		return
	}
	m, err := h.medSvc.Get(c.Request.Context(), id, patientID(c))
	if err != nil {
		medFail(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// UpdateMedication godoc
// @ID          updateMedication
// @Summary     Update a medication
// @Description Updates a medication and regenerates today's intake records. Doses already taken or missed today are preserved.
// @Tags        Medications
// @Accept      json
// @Produce     json
//
// @Param       X-Patient-ID  header  string  false "Patient ID (demo header)"  example(patient123)
// @Param       id            path    string  true  "Medication ID (UUID)"  format(uuid)
// @Param       body          body    handlers.MedicationRequest  true  "Medication payload"
//
// @Success     200  {object}  domain.Medication
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Medication not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /medications/{id} [put]
func (h *Handlers) UpdateMedication(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "medication id must be a UUID")
		return
	}
	var req MedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	updated, err := h.medSvc.Update(c.Request.Context(), patientID(c), req.model(id), time.Now())
	if err != nil {
		medFail(c, err)
		return
	}
	ok(c, http.StatusOK, updated)
}

// DeleteMedication godoc
// @ID          deleteMedication
// @Summary     Remove a medication from the plan
// @Description Deletes a medication. Intake records already resolved against it remain in the history.
// @Tags        Medications
// @Produce     json
//
// @Param       X-Patient-ID  header  string  false "Patient ID (demo header)"  example(patient123)
// @Param       id            path    string  true  "Medication ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Medication not found"
// @Router      /medications/{id} [delete]
func (h *Handlers) DeleteMedication(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "medication id must be a UUID")
		return
	}
	if err := h.medSvc.Delete(c.Request.Context(), id, patientID(c), time.Now()); err != nil {
		medFail(c, err)
		return
	}
	noContent(c)
}
