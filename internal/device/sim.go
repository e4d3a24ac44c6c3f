package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// ErrAlreadyConnected is returned by Connect while a pairing is active.
var ErrAlreadyConnected = errors.New("already connected to a device")

// ErrNotConnected is returned when an operation needs an active pairing.
var ErrNotConnected = errors.New("device is not connected")

// Simulator timing. Vars rather than consts so tests can shrink them.
var (
	simScanDelay     = 2 * time.Second
	simConnectDelay  = 1500 * time.Millisecond
	simDrainEvery    = time.Minute
	simLidCloseAfter = 3 * time.Second
)

// simConnectBattery is the battery level reported right after pairing.
const simConnectBattery = 95

// SimTransport is an in-process pillbox simulator. It stands in for the real
// Bluetooth link: pairing reports a fresh battery that drains one percent a
// minute, hitting zero disconnects the device, and compartment openings can
// be injected through OpenCompartment (wired to a debug endpoint).
type SimTransport struct {
	// Compartments is the slot count of the simulated pillbox.
	Compartments int
	// Log receives lifecycle diagnostics.
	Log zerolog.Logger

	mu        sync.Mutex
	state     domain.DeviceState
	drainStop chan struct{}

	stateHub hub[domain.DeviceState]
	openHub  hub[int]
}

// NewSimTransport builds a disconnected simulator with the given slot count.
func NewSimTransport(compartments int, log zerolog.Logger) *SimTransport {
	t := &SimTransport{Compartments: compartments, Log: log}
	t.state = domain.DeviceState{Compartments: freshCompartments(compartments)}
	return t
}

func freshCompartments(n int) []domain.Compartment {
	out := make([]domain.Compartment, n)
	for i := range out {
		out[i] = domain.Compartment{ID: i + 1}
	}
	return out
}

// Scan reports two fixed simulated pillboxes after a short discovery delay.
func (t *SimTransport) Scan(ctx context.Context) ([]domain.PillboxDevice, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(simScanDelay):
	}
	return []domain.PillboxDevice{
		{ID: "pildhora-001", Name: "Pastillero de Elena"},
		{ID: "pildhora-002", Name: "Pastillero PILDHORA v2"},
	}, nil
}

// Connect pairs with deviceID, resets the battery to its fresh level and
// starts the drain ticker.
func (t *SimTransport) Connect(ctx context.Context, deviceID string) error {
	t.mu.Lock()
	if t.state.Connected {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(simConnectDelay):
	}

	t.mu.Lock()
	if t.state.Connected {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.state.Connected = true
	t.state.BatteryLevel = simConnectBattery
	t.state.Device = &domain.PillboxDevice{ID: deviceID, Name: "Pastillero (" + tail(deviceID, 4) + ")"}
	stop := make(chan struct{})
	t.drainStop = stop
	snapshot := t.state
	t.mu.Unlock()

	t.Log.Info().Str("device_id", deviceID).Msg("pillbox connected")
	t.stateHub.publish(snapshot)
	go t.drainLoop(stop)
	return nil
}

// drainLoop lowers the battery one percent per tick until zero, then
// disconnects the device.
func (t *SimTransport) drainLoop(stop chan struct{}) {
	ticker := time.NewTicker(simDrainEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		t.mu.Lock()
		if !t.state.Connected {
			t.mu.Unlock()
			return
		}
		if t.state.BatteryLevel > 0 {
			t.state.BatteryLevel--
		}
		empty := t.state.BatteryLevel == 0
		snapshot := t.state
		t.mu.Unlock()

		t.stateHub.publish(snapshot)
		if empty {
			t.Log.Warn().Msg("pillbox battery empty, disconnecting")
			t.Disconnect()
			return
		}
	}
}

// Disconnect drops the pairing, stops the drain ticker and zeroes the state.
func (t *SimTransport) Disconnect() {
	t.mu.Lock()
	if !t.state.Connected {
		t.mu.Unlock()
		return
	}
	if t.drainStop != nil {
		close(t.drainStop)
		t.drainStop = nil
	}
	t.state = domain.DeviceState{Compartments: freshCompartments(t.Compartments)}
	snapshot := t.state
	t.mu.Unlock()

	t.Log.Info().Msg("pillbox disconnected")
	t.stateHub.publish(snapshot)
}

// State returns a copy of the current snapshot.
func (t *SimTransport) State() domain.DeviceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state
	st.Compartments = append([]domain.Compartment(nil), t.state.Compartments...)
	return st
}

// OnStateChange implements Transport.
func (t *SimTransport) OnStateChange(fn func(domain.DeviceState)) func() {
	return t.stateHub.subscribe(fn)
}

// OnCompartmentOpen implements Transport.
func (t *SimTransport) OnCompartmentOpen(fn func(int)) func() {
	return t.openHub.subscribe(fn)
}

// OpenCompartment injects a lid-open event for the given slot, as if the
// patient opened it on the physical device. The lid closes by itself shortly
// after. Fails with ErrNotConnected while unpaired.
func (t *SimTransport) OpenCompartment(compartment int) error {
	if compartment < 1 || compartment > t.Compartments {
		return errors.New("compartment out of range")
	}
	t.mu.Lock()
	if !t.state.Connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.setLidLocked(compartment, true)
	snapshot := t.state
	t.mu.Unlock()

	t.openHub.publish(compartment)
	t.stateHub.publish(snapshot)

	time.AfterFunc(simLidCloseAfter, func() {
		t.mu.Lock()
		t.setLidLocked(compartment, false)
		snapshot := t.state
		t.mu.Unlock()
		t.stateHub.publish(snapshot)
	})
	return nil
}

func (t *SimTransport) setLidLocked(compartment int, open bool) {
	for i := range t.state.Compartments {
		if t.state.Compartments[i].ID == compartment {
			t.state.Compartments[i].Open = open
		}
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
