// Notification feed HTTP handlers.
//
// This file exposes REST endpoints for the caregiver notification feed and
// the per-patient alert preferences:
//   - GET /notifications           (list newest-first)
//   - PUT /notifications/read      (mark everything read)
//   - GET /notifications/preferences
//   - PUT /notifications/preferences
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pildhora/go-adherence-backend/internal/domain"
	"github.com/pildhora/go-adherence-backend/internal/utils"
)

// PreferencesRequest is the JSON payload for updating alert preferences.
// Omitted fields read as false, so clients should always send all three.
type PreferencesRequest struct {
	MissedDose bool `json:"missed_dose"`
	DoseTaken  bool `json:"dose_taken"`
	LowStock   bool `json:"low_stock"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     Notification feed
// @Description Returns notifications, newest first. An optional limit caps the page.
// @Tags        Notifications
// @Produce     json
//
// @Param       limit  query  int  false "Max items to return (0 = all)"  example(50)
//
// @Success     200  {array}  domain.Notification
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	items, err := h.notifySvc.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	if limit := utils.ParseLimit(c.Query("limit")); limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	ok(c, http.StatusOK, items)
}

// MarkNotificationsRead godoc
// @ID          markNotificationsRead
// @Summary     Mark all notifications read
// @Tags        Notifications
// @Produce     json
//
// @Success     204  {string} string "No Content"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/read [put]
func (h *Handlers) MarkNotificationsRead(c *gin.Context) {
	if err := h.notifySvc.MarkAllRead(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// GetPreferences godoc
// @ID          getPreferences
// @Summary     Alert preferences
// @Description Returns the patient's alert preferences; defaults apply when none were ever saved.
// @Tags        Notifications
// @Produce     json
//
// @Param       X-Patient-ID  header  string  false "Patient ID (demo header)"  example(patient123)
//
// @Success     200  {object} domain.NotificationPreferences
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/preferences [get]
func (h *Handlers) GetPreferences(c *gin.Context) {
	p, err := h.notifySvc.Preferences(c.Request.Context(), patientID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdatePreferences godoc
// @ID          updatePreferences
// @Summary     Update alert preferences
// @Tags        Notifications
// @Accept      json
// @Produce     json
//
// @Param       X-Patient-ID  header  string  false "Patient ID (demo header)"  example(patient123)
// @Param       body          body    handlers.PreferencesRequest  true  "Preferences payload"
//
// @Success     200  {object} domain.NotificationPreferences
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/preferences [put]
func (h *Handlers) UpdatePreferences(c *gin.Context) {
	var req PreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p, err := h.notifySvc.SavePreferences(c.Request.Context(), patientID(c), domain.NotificationPreferences{
		MissedDose: req.MissedDose,
		DoseTaken:  req.DoseTaken,
		LowStock:   req.LowStock,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, p)
}
