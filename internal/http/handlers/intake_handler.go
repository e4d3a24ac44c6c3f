// Intake ledger HTTP handlers.
//
// This file exposes REST endpoints for intake records:
//   - GET /intakes             (full history, regenerates today first, ETag support)
//   - PUT /intakes/{id}/status (resolve a pending dose)
//
// The status endpoint is the manual confirmation path; device confirmations
// arrive through the event bridge and never pass through HTTP.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pildhora/go-adherence-backend/internal/domain"
	"github.com/pildhora/go-adherence-backend/internal/repo"
	"github.com/pildhora/go-adherence-backend/internal/services"
)

// UpdateIntakeStatusRequest is the JSON payload for resolving a dose.
type UpdateIntakeStatusRequest struct {
	// Status is the terminal resolution: "TAKEN" or "MISSED".
	Status string `json:"status" binding:"required" example:"TAKEN"`
}

// ListIntakes godoc
// @ID          listIntakes
// @Summary     Intake history
// @Description Regenerates today's intake records from the current plan, then returns the full history oldest-first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Intakes
// @Produce     json
//
// @Param       X-Patient-ID   header  string  false "Patient ID (demo header)"     example(patient123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"   example(W/\"abc123\")
//
// @Success     200  {array}  domain.IntakeRecord
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /intakes [get]
func (h *Handlers) ListIntakes(c *gin.Context) {
	ctx := c.Request.Context()
	pid := patientID(c)

	items, err := h.ledgerSvc.History(ctx, pid, time.Now())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	// ETag post-regeneration (best effort). Computed after History so the
	// tag reflects records created for today.
	var db *gorm.DB
	if svc, ok := h.ledgerSvc.(*services.LedgerService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.IntakeStats(ctx, db, pid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"intakes:%s:%d:%d"`, pid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	if items == nil {
		items = []domain.IntakeRecord{}
	}
	ok(c, http.StatusOK, items)
}

// UpdateIntakeStatus godoc
// @ID          updateIntakeStatus
// @Summary     Resolve a pending dose
// @Description Marks a pending intake record as taken or missed on behalf of the patient. Repeating the same resolution is a no-op; changing a resolution is rejected.
// @Tags        Intakes
// @Accept      json
// @Produce     json
//
// @Param       X-Patient-ID  header  string  false "Patient ID (demo header)"  example(patient123)
// @Param       id            path    string  true  "Intake record ID"
// @Param       body          body    handlers.UpdateIntakeStatusRequest  true  "Resolution payload"
//
// @Success     200  {object} domain.IntakeRecord
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Record not found"
// @Failure     409  {object} handlers.ErrorResponse "Already resolved"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /intakes/{id}/status [put]
func (h *Handlers) UpdateIntakeStatus(c *gin.Context) {
	var req UpdateIntakeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	rec, err := h.ledgerSvc.SetStatus(c.Request.Context(), c.Param("id"),
		domain.IntakeStatus(req.Status), domain.MethodManual, time.Now())
	switch {
	case errors.Is(err, services.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, ErrCodeInvalidStatus, "status must be TAKEN or MISSED")
	case errors.Is(err, services.ErrInvalidTransition):
		fail(c, http.StatusConflict, ErrCodeInvalidTransition, "intake record already resolved")
	case errors.Is(err, services.ErrIntakeNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "intake record not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	default:
		ok(c, http.StatusOK, rec)
	}
}
