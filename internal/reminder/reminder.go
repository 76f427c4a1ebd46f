// Package reminder implements Patch's reminder ledger: durable scheduling of
// timed tasks, recurring re-arming, snoozing, archival and retention pruning.
package reminder

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ArchiveTimeFormat is the local timestamp format stored on archive entries.
const ArchiveTimeFormat = "2006-01-02 15:04"

// secondsPerDay is the re-arm interval for recurring reminders.
const secondsPerDay = 86400

// Status marks how a reminder left the active set.
type Status string

const (
	StatusTriggered Status = "triggered"
	StatusMissed    Status = "missed"
)

// Reminder is a single scheduled task. Time is epoch seconds in local
// wall-clock; a reminder fires once wall-clock reaches it, unless snoozed.
type Reminder struct {
	ID           string `json:"id"`
	Task         string `json:"task"`
	Time         int64  `json:"time"`
	Recurring    bool   `json:"recurring"`
	SnoozedUntil *int64 `json:"snoozed_until"`
	// Triggered survives from older documents; snoozing clears it.
	Triggered bool `json:"triggered,omitempty"`
}

// Due reports whether the reminder is eligible to fire at now (epoch seconds).
// A snoozed reminder is never due until its snooze has elapsed.
func (r *Reminder) Due(now int64) bool {
	if r.SnoozedUntil != nil && now < *r.SnoozedUntil {
		return false
	}
	return now >= r.Time
}

// FireTime renders the reminder's fire time as a local human-readable string.
func (r *Reminder) FireTime() string {
	return time.Unix(r.Time, 0).Format(ArchiveTimeFormat)
}

// ArchiveEntry is a snapshot of a reminder after it left the active set.
// Entries are immutable except for retention pruning.
type ArchiveEntry struct {
	Reminder
	Status     Status `json:"status"`
	ArchivedAt string `json:"archived_at"`
}

// Ledger is the persisted reminder document: the active set, the bounded
// historical archive, and the monotonic id counter.
type Ledger struct {
	Active  []Reminder     `json:"active"`
	Archive []ArchiveEntry `json:"archive"`
	NextID  int            `json:"next_id,omitempty"`
}

// NewLedger returns an empty ledger.
func NewLedger() Ledger {
	return Ledger{
		Active:  []Reminder{},
		Archive: []ArchiveEntry{},
		NextID:  1,
	}
}

// UnmarshalJSON accepts both the current document shape and the legacy
// {"reminders": [...]} shape, which normalizes to {active, archive: []}.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	type ledgerDoc Ledger
	var doc struct {
		ledgerDoc
		Legacy []Reminder `json:"reminders"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*l = Ledger(doc.ledgerDoc)
	if l.Active == nil && doc.Legacy != nil {
		l.Active = doc.Legacy
	}
	l.normalize()
	return nil
}

// normalize repairs nil slices and seeds the id counter for documents written
// before ids were allocated monotonically.
func (l *Ledger) normalize() {
	if l.Active == nil {
		l.Active = []Reminder{}
	}
	if l.Archive == nil {
		l.Archive = []ArchiveEntry{}
	}
	if l.NextID < 1 {
		l.NextID = 1
		for _, r := range l.Active {
			if n, ok := parseOrdinal(r.ID); ok && n >= l.NextID {
				l.NextID = n + 1
			}
		}
		for _, e := range l.Archive {
			if n, ok := parseOrdinal(e.ID); ok && n >= l.NextID {
				l.NextID = n + 1
			}
		}
	}
}

// allocateID hands out the next rem_NNN id.
func (l *Ledger) allocateID() string {
	id := fmt.Sprintf("rem_%03d", l.NextID)
	l.NextID++
	return id
}

func parseOrdinal(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "rem_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
