// Pillbox device HTTP handlers.
//
// This file exposes REST endpoints for managing the paired pillbox:
//   - GET    /device                      (current state snapshot)
//   - GET    /device/scan                 (discover nearby pillboxes)
//   - POST   /device/connect              (pair)
//   - POST   /device/disconnect           (unpair)
//   - POST   /device/compartments/{id}/open (simulate a lid opening)
//
// The compartment-open endpoint exists because this deployment runs against
// the device simulator; it injects the event a physical pillbox would send
// over Bluetooth.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pildhora/go-adherence-backend/internal/device"
)

// ConnectDeviceRequest is the JSON payload for pairing with a pillbox.
type ConnectDeviceRequest struct {
	// DeviceID as reported by a scan.
	DeviceID string `json:"device_id" binding:"required" example:"pildhora-001"`
}

// GetDeviceState godoc
// @ID          getDeviceState
// @Summary     Pillbox state
// @Description Returns the current device snapshot: connection, battery, compartment lids.
// @Tags        Device
// @Produce     json
//
// @Success     200  {object} domain.DeviceState
// @Router      /device [get]
func (h *Handlers) GetDeviceState(c *gin.Context) {
	ok(c, http.StatusOK, h.deviceSvc.State())
}

// ScanDevices godoc
// @ID          scanDevices
// @Summary     Discover pillboxes
// @Description Scans for nearby pillboxes. Blocks for the duration of the discovery.
// @Tags        Device
// @Produce     json
//
// @Success     200  {array}  domain.PillboxDevice
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /device/scan [get]
func (h *Handlers) ScanDevices(c *gin.Context) {
	devices, err := h.deviceSvc.Scan(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, devices)
}

// ConnectDevice godoc
// @ID          connectDevice
// @Summary     Pair with a pillbox
// @Tags        Device
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ConnectDeviceRequest  true  "Pairing payload"
//
// @Success     200  {object} domain.DeviceState
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Already connected"
// @Router      /device/connect [post]
func (h *Handlers) ConnectDevice(c *gin.Context) {
	var req ConnectDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.deviceSvc.Connect(c.Request.Context(), req.DeviceID); err != nil {
		if errors.Is(err, device.ErrAlreadyConnected) {
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, h.deviceSvc.State())
}

// DisconnectDevice godoc
// @ID          disconnectDevice
// @Summary     Unpair the pillbox
// @Tags        Device
// @Produce     json
//
// @Success     204  {string} string "No Content"
// @Router      /device/disconnect [post]
func (h *Handlers) DisconnectDevice(c *gin.Context) {
	h.deviceSvc.Disconnect()
	noContent(c)
}

// OpenCompartment godoc
// @ID          openCompartment
// @Summary     Simulate a compartment opening
// @Description Injects a lid-open event for the given compartment, as if the patient opened it on the physical pillbox. A pending dose inside its acceptance window is confirmed as taken.
// @Tags        Device
// @Produce     json
//
// @Param       id  path  int  true  "Compartment number (1-based)"
//
// @Success     202  {string} string "Accepted"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Device not connected"
// @Router      /device/compartments/{id}/open [post]
func (h *Handlers) OpenCompartment(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "compartment must be a positive integer")
		return
	}
	if err := h.deviceSvc.OpenCompartment(id); err != nil {
		if errors.Is(err, device.ErrNotConnected) {
			fail(c, http.StatusConflict, ErrCodeDeviceUnavailable, err.Error())
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	c.Status(http.StatusAccepted)
}
