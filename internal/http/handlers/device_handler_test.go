package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pildhora/go-adherence-backend/internal/device"
	"github.com/pildhora/go-adherence-backend/internal/domain"
)

func newDeviceHandlers(dev DeviceController) *Handlers {
	return New(stubMedSvc{}, stubLedgerSvc{}, stubTaskSvc{}, stubNotifySvc{}, dev)
}

func TestGetDeviceState_Snapshot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dev := stubDeviceSvc{state: domain.DeviceState{
		Connected:    true,
		BatteryLevel: 80,
		Device:       &domain.PillboxDevice{ID: "pildhora-001", Name: "Pastillero de Elena"},
		Compartments: []domain.Compartment{{ID: 1}, {ID: 2}},
	}}
	h := newDeviceHandlers(dev)
	r := gin.New()
	r.GET("/device", h.GetDeviceState)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/device", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("state -> %d", w.Code)
	}
	var out domain.DeviceState
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !out.Connected || out.BatteryLevel != 80 || out.Device == nil || out.Device.ID != "pildhora-001" {
		t.Fatalf("unexpected state: %+v", out)
	}
}

func TestScanDevices_Success_And_Failure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Success
	{
		dev := stubDeviceSvc{scan: func(context.Context) ([]domain.PillboxDevice, error) {
			return []domain.PillboxDevice{{ID: "pildhora-001", Name: "Pastillero de Elena"}}, nil
		}}
		h := newDeviceHandlers(dev)
		r := gin.New()
		r.GET("/device/scan", h.ScanDevices)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/device/scan", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("scan -> %d", w.Code)
		}
		var out []domain.PillboxDevice
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil || len(out) != 1 {
			t.Fatalf("scan result: err=%v len=%d", err, len(out))
		}
	}

	// Cancelled scan -> 500
	{
		dev := stubDeviceSvc{scan: func(ctx context.Context) ([]domain.PillboxDevice, error) {
			return nil, context.Canceled
		}}
		h := newDeviceHandlers(dev)
		r := gin.New()
		r.GET("/device/scan", h.ScanDevices)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/device/scan", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("failed scan -> %d", w.Code)
		}
	}
}

func TestConnectDevice_BadJSON_Conflict_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Bad JSON -> 400
	{
		h := newDeviceHandlers(stubDeviceSvc{})
		r := gin.New()
		r.POST("/device/connect", h.ConnectDevice)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/device/connect", bytes.NewBufferString("{bad"))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("bad json -> %d", w.Code)
		}
	}

	// Second pairing attempt -> 409
	{
		dev := stubDeviceSvc{connect: func(context.Context, string) error {
			return device.ErrAlreadyConnected
		}}
		h := newDeviceHandlers(dev)
		r := gin.New()
		r.POST("/device/connect", h.ConnectDevice)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/device/connect",
			bytes.NewBufferString(`{"device_id":"pildhora-001"}`))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusConflict {
			t.Fatalf("already connected -> %d", w.Code)
		}
	}

	// Success -> 200 with the fresh snapshot
	{
		dev := stubDeviceSvc{state: domain.DeviceState{Connected: true, BatteryLevel: 95}}
		h := newDeviceHandlers(dev)
		r := gin.New()
		r.POST("/device/connect", h.ConnectDevice)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/device/connect",
			bytes.NewBufferString(`{"device_id":"pildhora-001"}`))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("connect -> %d body=%s", w.Code, w.Body.String())
		}
		var out domain.DeviceState
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil || !out.Connected || out.BatteryLevel != 95 {
			t.Fatalf("unexpected snapshot: %+v (err=%v)", out, err)
		}
	}
}

func TestDisconnectDevice_NoContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newDeviceHandlers(stubDeviceSvc{})
	r := gin.New()
	r.POST("/device/disconnect", h.DisconnectDevice)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/device/disconnect", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("disconnect -> %d", w.Code)
	}
}

func TestOpenCompartment_Validation_NotConnected_Accepted(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Non-numeric and non-positive ids -> 400
	{
		h := newDeviceHandlers(stubDeviceSvc{})
		r := gin.New()
		r.POST("/device/compartments/:id/open", h.OpenCompartment)

		for _, id := range []string{"abc", "0", "-2"} {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/device/compartments/"+id+"/open", nil)
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("id %q -> %d", id, w.Code)
			}
		}
	}

	// Not connected -> 409 device_unavailable
	{
		dev := stubDeviceSvc{open: func(int) error { return device.ErrNotConnected }}
		h := newDeviceHandlers(dev)
		r := gin.New()
		r.POST("/device/compartments/:id/open", h.OpenCompartment)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/device/compartments/1/open", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusConflict {
			t.Fatalf("not connected -> %d", w.Code)
		}
		var er ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != ErrCodeDeviceUnavailable {
			t.Fatalf("expected %s, got %q (err=%v)", ErrCodeDeviceUnavailable, er.Code, err)
		}
	}

	// Success -> 202, recorded compartment id
	{
		var got int
		dev := stubDeviceSvc{open: func(id int) error { got = id; return nil }}
		h := newDeviceHandlers(dev)
		r := gin.New()
		r.POST("/device/compartments/:id/open", h.OpenCompartment)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/device/compartments/3/open", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusAccepted || got != 3 {
			t.Fatalf("open -> %d got=%d", w.Code, got)
		}
	}
}
