package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode"
)

// Recurrence is a simple "<integer><unit>" interval, units s/m/h/d/w.
type Recurrence struct {
	Count int
	Unit  byte
}

// ParseRecurrence parses strings like "30s", "15m", "6h", "1d", "2w".
func ParseRecurrence(spec string) (Recurrence, error) {
	if len(spec) < 2 {
		return Recurrence{}, fmt.Errorf("invalid recurrence %q, want \"<integer><unit>\"", spec)
	}
	unit := spec[len(spec)-1]
	switch unit {
	case 's', 'm', 'h', 'd', 'w':
	default:
		return Recurrence{}, fmt.Errorf("invalid recurrence unit %q in %q, want one of s m h d w", string(unit), spec)
	}
	digits := spec[:len(spec)-1]
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return Recurrence{}, fmt.Errorf("invalid recurrence count in %q", spec)
		}
	}
	count, err := strconv.Atoi(digits)
	if err != nil || count <= 0 {
		return Recurrence{}, fmt.Errorf("recurrence count must be a positive integer in %q", spec)
	}
	return Recurrence{Count: count, Unit: unit}, nil
}

// Interval converts the recurrence to a duration.
func (r Recurrence) Interval() time.Duration {
	base := map[byte]time.Duration{
		's': time.Second,
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	}[r.Unit]
	return time.Duration(r.Count) * base
}

func (r Recurrence) String() string {
	return fmt.Sprintf("%d%c", r.Count, r.Unit)
}

// JobSchedule is a recurring job definition. Mutated only by the scheduler
// (run-time advancement) and the admin surface (create/edit).
type JobSchedule struct {
	ID   string  `json:"id" badgerhold:"key"`
	Name string  `json:"name,omitempty"`
	Kind JobKind `json:"kind"`

	// PayloadTemplate is enqueued verbatim as the job payload.
	PayloadTemplate json.RawMessage `json:"payload_template"`

	Recurrence string `json:"recurrence"` // "<integer><unit>"

	// CredentialID scopes the exclusivity invariant; TargetID empty means
	// wildcard. At most one wildcard per (kind, credential), and a wildcard
	// never coexists with targeted schedules for the same pair.
	CredentialID string `json:"credential_id,omitempty"`
	TargetID     string `json:"target_id,omitempty"`

	Active    bool       `json:"active"`
	NextRun   time.Time  `json:"next_run"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsWildcard reports whether the schedule applies to all targets for its
// credential.
func (s *JobSchedule) IsWildcard() bool {
	return s.TargetID == ""
}

// NextRunAfter advances the schedule's baseline past now by whole intervals,
// returning the first run strictly in the future. A scheduler that was down
// for hours enqueues one catch-up job at most, not a burst.
func (s *JobSchedule) NextRunAfter(now time.Time) (time.Time, error) {
	rec, err := ParseRecurrence(s.Recurrence)
	if err != nil {
		return time.Time{}, err
	}
	interval := rec.Interval()

	baseline := s.NextRun
	if baseline.IsZero() {
		baseline = now
	}
	if baseline.After(now) {
		return baseline, nil
	}
	// Jump in one step rather than looping interval by interval.
	elapsed := now.Sub(baseline)
	steps := elapsed/interval + 1
	return baseline.Add(steps * interval), nil
}
