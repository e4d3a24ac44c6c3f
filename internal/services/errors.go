// Package services defines the business logic for the intake ledger,
// medications, caregiver tasks, and notifications. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrMedicationNotFound indicates that the requested medication does not
	// exist or does not belong to the current patient.
	ErrMedicationNotFound = errors.New("medication not found")

	// ErrIntakeNotFound indicates that the requested intake record does not
	// exist.
	ErrIntakeNotFound = errors.New("intake record not found")

	// ErrEmptyName is returned when a medication is created or updated with
	// a blank name.
	ErrEmptyName = errors.New("medication name is empty")

	// ErrTaskNotFound indicates that the requested task does not exist or is
	// not accessible to the current caregiver.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidSchedule is returned when a medication's dosing schedule
	// fails validation (empty time list, empty weekday set, malformed clock
	// values).
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrInvalidCompartment is returned when a medication names a pillbox
	// compartment outside the device capacity.
	ErrInvalidCompartment = errors.New("compartment outside device capacity")

	// ErrInvalidStock is returned when a medication carries a negative stock
	// or refill reminder level.
	ErrInvalidStock = errors.New("stock must not be negative")

	// ErrInvalidStatus is returned when a status transition names an unknown
	// status value.
	ErrInvalidStatus = errors.New("unknown intake status")

	// ErrInvalidTransition is returned for illegal status changes: back to
	// pending, or from one terminal resolution to another. Pending is only
	// reachable through regeneration of an unresolved slot.
	ErrInvalidTransition = errors.New("illegal intake status transition")

	// ErrEmptyTitle is returned when a task is created or renamed with a
	// blank title.
	ErrEmptyTitle = errors.New("title is empty")
)
