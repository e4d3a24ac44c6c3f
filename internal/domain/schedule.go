// Schedule model: a medication's recurring dosing plan and the day-level
// queries the intake ledger derives records from. The type is embedded in
// Medication and persisted as flat columns (frequency, CSV times, CSV days).
package domain

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Frequency tags how often a medication's doses recur.
type Frequency string

const (
	// FrequencyDaily schedules every listed time on every day.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekdays schedules the listed times only on the listed weekdays.
	FrequencyWeekdays Frequency = "weekdays"
	// FrequencyAsNeeded marks an on-demand medication; no records are
	// generated for it.
	FrequencyAsNeeded Frequency = "as_needed"
)

// Schedule describes a medication's recurring timing. A zero-value Schedule
// (empty Frequency) means the medication has no dosing plan and is never
// active.
type Schedule struct {
	Frequency Frequency  `json:"frequency,omitempty" gorm:"type:varchar(16)"`
	Times     ClockTimes `json:"times,omitempty"     gorm:"type:text"`
	Days      Weekdays   `json:"days,omitempty"      gorm:"type:text"`
}

// Empty reports whether no schedule was configured at all.
func (s Schedule) Empty() bool { return s.Frequency == "" }

// Validate checks the schedule invariants:
//   - the frequency tag is known (or empty),
//   - every clock time parses as 24h "HH:MM" and appears once,
//   - daily/weekday schedules carry at least one time,
//   - weekday schedules carry at least one day.
func (s Schedule) Validate() error {
	switch s.Frequency {
	case "", FrequencyDaily, FrequencyWeekdays, FrequencyAsNeeded:
	default:
		return fmt.Errorf("unknown frequency %q", s.Frequency)
	}
	seen := make(map[string]struct{}, len(s.Times))
	for _, t := range s.Times {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("invalid clock time %q", t)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("duplicate clock time %q", t)
		}
		seen[t] = struct{}{}
	}
	switch s.Frequency {
	case FrequencyDaily, FrequencyWeekdays:
		if len(s.Times) == 0 {
			return fmt.Errorf("schedule with frequency %q requires at least one time", s.Frequency)
		}
	}
	if s.Frequency == FrequencyWeekdays && len(s.Days) == 0 {
		return fmt.Errorf("weekday schedule requires at least one day")
	}
	return nil
}

// ActiveOn reports whether doses are scheduled on the given calendar day.
// As-needed and schedule-less medications are never active.
func (s Schedule) ActiveOn(day time.Time) bool {
	switch s.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekdays:
		for _, d := range s.Days {
			if d == day.Weekday() {
				return true
			}
		}
	}
	return false
}

// DosesFor returns the ordered clock times scheduled for the given day, or
// nil when the schedule is not active that day.
func (s Schedule) DosesFor(day time.Time) []string {
	if !s.ActiveOn(day) {
		return nil
	}
	out := make([]string, len(s.Times))
	copy(out, s.Times)
	sort.Strings(out)
	return out
}

// ClockTimes is an ordered set of "HH:MM" strings stored as a CSV column.
type ClockTimes []string

// Value serializes the times for storage.
func (t ClockTimes) Value() (driver.Value, error) {
	if len(t) == 0 {
		return "", nil
	}
	return strings.Join(t, ","), nil
}

// Scan restores the times from the stored CSV value.
func (t *ClockTimes) Scan(src any) error {
	s, err := scanString(src)
	if err != nil {
		return fmt.Errorf("scan clock times: %w", err)
	}
	if s == "" {
		*t = nil
		return nil
	}
	*t = strings.Split(s, ",")
	return nil
}

// Weekdays is a set of weekdays stored as a CSV column of time.Weekday values.
type Weekdays []time.Weekday

// Value serializes the weekdays for storage.
func (w Weekdays) Value() (driver.Value, error) {
	if len(w) == 0 {
		return "", nil
	}
	parts := make([]string, len(w))
	for i, d := range w {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ","), nil
}

// Scan restores the weekdays from the stored CSV value.
func (w *Weekdays) Scan(src any) error {
	s, err := scanString(src)
	if err != nil {
		return fmt.Errorf("scan weekdays: %w", err)
	}
	if s == "" {
		*w = nil
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(Weekdays, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			return fmt.Errorf("invalid weekday value %q", p)
		}
		out = append(out, time.Weekday(n))
	}
	*w = out
	return nil
}

func scanString(src any) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported source type %T", src)
	}
}
