package reminder

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Persister is the serialization boundary for the ledger document.
type Persister interface {
	Load(path string, v any) bool
	Save(path string, v any) error
}

// Config configures the Scheduler.
type Config struct {
	Path          string // ledger document path
	MaxActive     int    // active-set capacity (default 20)
	RetentionDays int    // archive retention window (default 14)
	SnoozeMinutes int    // default snooze length (default 10)
}

// Scheduler owns the reminder ledger. Every operation takes the ledger lock
// for its whole read-modify-write span, so the polling loop and the
// foreground router never interleave partial updates.
type Scheduler struct {
	mu     sync.Mutex
	ledger Ledger

	store  Persister
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// AddOutcome reports the result of an Add. LimitReached means the active set
// was full and nothing was appended.
type AddOutcome struct {
	ID           string
	FireTime     string
	LimitReached bool
	ActiveCount  int
}

// View is a Reminder with its fire time rendered for humans.
type View struct {
	ID        string `json:"id"`
	Task      string `json:"task"`
	Time      string `json:"time"`
	Recurring bool   `json:"recurring"`
}

// WipeCounts reports how many entries a Wipe removed from each list.
type WipeCounts struct {
	Active  int
	Archive int
}

// Total returns the combined removal count.
func (w WipeCounts) Total() int { return w.Active + w.Archive }

// Summary is the factual payload of a daily report: tasks completed and
// missed on a given date, taken from the archive.
type Summary struct {
	Date      string   `json:"date"`
	Completed []string `json:"completed"`
	Missed    []string `json:"missed"`
}

// NewScheduler loads the ledger from disk (falling back to an empty one on a
// missing or corrupt document) and prunes the archive by the retention
// window.
func NewScheduler(store Persister, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 20
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 14
	}
	if cfg.SnoozeMinutes <= 0 {
		cfg.SnoozeMinutes = 10
	}

	s := &Scheduler{
		ledger: NewLedger(),
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "reminder").Logger(),
		now:    time.Now,
	}

	if !store.Load(cfg.Path, &s.ledger) {
		s.ledger = NewLedger()
	}
	s.ledger.normalize()

	if removed := s.pruneLocked(s.now()); removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Pruned expired archive entries on load")
		s.persistLocked()
	}

	return s
}

// SetClock overrides the wall-clock source. Tests only.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Add parses a fire time out of rawInput, appends a new reminder and
// persists. When the active set is at capacity it reports LimitReached with
// the current count and changes nothing.
func (s *Scheduler) Add(task, rawInput string, recurring bool) (AddOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ledger.Active) >= s.cfg.MaxActive {
		return AddOutcome{LimitReached: true, ActiveCount: len(s.ledger.Active)}, nil
	}

	r := Reminder{
		ID:        s.ledger.allocateID(),
		Task:      task,
		Time:      ParseFireTime(rawInput, s.now()),
		Recurring: recurring,
	}
	s.ledger.Active = append(s.ledger.Active, r)

	if err := s.persistLocked(); err != nil {
		// Roll back so a reminder the caller was told failed never fires
		s.ledger.Active = s.ledger.Active[:len(s.ledger.Active)-1]
		s.ledger.NextID--
		return AddOutcome{}, err
	}

	s.logger.Info().Str("id", r.ID).Str("task", r.Task).Str("fires", r.FireTime()).
		Bool("recurring", r.Recurring).Msg("Reminder added")

	return AddOutcome{
		ID:          r.ID,
		FireTime:    r.FireTime(),
		ActiveCount: len(s.ledger.Active),
	}, nil
}

// List returns the active reminders with rendered fire times. It never
// mutates state.
func (s *Scheduler) List() []View {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]View, 0, len(s.ledger.Active))
	for _, r := range s.ledger.Active {
		views = append(views, View{
			ID:        r.ID,
			Task:      r.Task,
			Time:      r.FireTime(),
			Recurring: r.Recurring,
		})
	}
	return views
}

// Delete removes every active reminder whose task contains keyword
// (case-insensitive) and returns the removed count. The ledger is persisted
// either way.
func (s *Scheduler) Delete(keyword string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(keyword)
	kept := s.ledger.Active[:0]
	for _, r := range s.ledger.Active {
		if strings.Contains(strings.ToLower(r.Task), needle) {
			continue
		}
		kept = append(kept, r)
	}
	removed := len(s.ledger.Active) - len(kept)
	s.ledger.Active = kept

	if err := s.persistLocked(); err != nil {
		return removed, err
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Str("keyword", keyword).Msg("Reminders deleted")
	}
	return removed, nil
}

// DeleteByID removes the single active reminder with the given id, for the
// dashboard's delete action. Returns false when the id is not active.
func (s *Scheduler) DeleteByID(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.ledger.Active {
		if s.ledger.Active[i].ID != id {
			continue
		}
		s.ledger.Active = append(s.ledger.Active[:i], s.ledger.Active[i+1:]...)
		if err := s.persistLocked(); err != nil {
			return true, err
		}
		s.logger.Info().Str("id", id).Msg("Reminder deleted")
		return true, nil
	}
	return false, nil
}

// Snooze suppresses the reminder with the given id for minutes (the
// configured default when minutes <= 0). Returns false when the id is not in
// the active set; absence is a normal outcome, not an error.
func (s *Scheduler) Snooze(id string, minutes int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if minutes <= 0 {
		minutes = s.cfg.SnoozeMinutes
	}

	for i := range s.ledger.Active {
		if s.ledger.Active[i].ID != id {
			continue
		}
		until := s.now().Add(time.Duration(minutes) * time.Minute).Unix()
		s.ledger.Active[i].SnoozedUntil = &until
		s.ledger.Active[i].Triggered = false
		if err := s.persistLocked(); err != nil {
			return true, err
		}
		s.logger.Info().Str("id", id).Int("minutes", minutes).Msg("Reminder snoozed")
		return true, nil
	}
	return false, nil
}

// CheckDue fires every eligible reminder at now: recurring ones re-arm one
// day out and stay active, one-shot ones move to the archive as triggered.
// A snooze that has elapsed is cleared before the due check. Returns copies
// of the fired reminders for announcement; persists only when something
// changed. Safe to call every second.
func (s *Scheduler) CheckDue(now time.Time) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowTS := now.Unix()
	archivedAt := now.Format(ArchiveTimeFormat)

	var fired []Reminder
	changed := false
	kept := s.ledger.Active[:0]

	for _, r := range s.ledger.Active {
		if r.SnoozedUntil != nil {
			if nowTS < *r.SnoozedUntil {
				kept = append(kept, r)
				continue
			}
			r.SnoozedUntil = nil
			changed = true
		}

		if nowTS < r.Time {
			kept = append(kept, r)
			continue
		}

		fired = append(fired, r)
		changed = true

		if r.Recurring {
			r.Time += secondsPerDay
			kept = append(kept, r)
		} else {
			s.ledger.Archive = append(s.ledger.Archive, ArchiveEntry{
				Reminder:   r,
				Status:     StatusTriggered,
				ArchivedAt: archivedAt,
			})
		}
	}
	s.ledger.Active = kept

	if !changed {
		return nil, nil
	}
	if err := s.persistLocked(); err != nil {
		return fired, err
	}
	for _, r := range fired {
		s.logger.Info().Str("id", r.ID).Str("task", r.Task).Msg("Reminder triggered")
	}
	return fired, nil
}

// RecoverMissed reconciles the ledger after downtime: every overdue one-shot
// reminder is archived as missed, every overdue recurring one is
// fast-forwarded by whole days until its fire time is in the future. Returns
// copies of the missed reminders for announcement.
func (s *Scheduler) RecoverMissed(now time.Time) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowTS := now.Unix()
	archivedAt := now.Format(ArchiveTimeFormat)

	var missed []Reminder
	kept := s.ledger.Active[:0]

	for _, r := range s.ledger.Active {
		if r.Time >= nowTS {
			kept = append(kept, r)
			continue
		}

		missed = append(missed, r)

		if r.Recurring {
			for r.Time < nowTS {
				r.Time += secondsPerDay
			}
			kept = append(kept, r)
		} else {
			s.ledger.Archive = append(s.ledger.Archive, ArchiveEntry{
				Reminder:   r,
				Status:     StatusMissed,
				ArchivedAt: archivedAt,
			})
		}
	}
	s.ledger.Active = kept

	if len(missed) == 0 {
		return nil, nil
	}
	if err := s.persistLocked(); err != nil {
		return missed, err
	}
	for _, r := range missed {
		s.logger.Warn().Str("id", r.ID).Str("task", r.Task).Msg("Reminder missed while offline")
	}
	return missed, nil
}

// Wipe clears the named scope ("active", "archive" or "all") and returns the
// per-list removal counts. An unknown scope removes nothing.
func (s *Scheduler) Wipe(scope string) (WipeCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts WipeCounts
	switch scope {
	case "active":
		counts.Active = len(s.ledger.Active)
		s.ledger.Active = []Reminder{}
	case "archive":
		counts.Archive = len(s.ledger.Archive)
		s.ledger.Archive = []ArchiveEntry{}
	case "all":
		counts.Active = len(s.ledger.Active)
		counts.Archive = len(s.ledger.Archive)
		s.ledger.Active = []Reminder{}
		s.ledger.Archive = []ArchiveEntry{}
	default:
		return counts, nil
	}

	if err := s.persistLocked(); err != nil {
		return counts, err
	}
	s.logger.Info().Str("scope", scope).Int("removed", counts.Total()).Msg("Reminders wiped")
	return counts, nil
}

// PruneArchive drops archive entries older than the retention window and
// returns how many were removed.
func (s *Scheduler) PruneArchive(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.pruneLocked(now)
	if removed == 0 {
		return 0, nil
	}
	if err := s.persistLocked(); err != nil {
		return removed, err
	}
	s.logger.Info().Int("removed", removed).Msg("Archive pruned")
	return removed, nil
}

// DailySummary partitions the archive entries of one date (YYYY-MM-DD) into
// completed and missed task lists.
func (s *Scheduler) DailySummary(date string) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if date == "" {
		date = s.now().Format("2006-01-02")
	}

	summary := Summary{
		Date:      date,
		Completed: []string{},
		Missed:    []string{},
	}
	for _, e := range s.ledger.Archive {
		if !strings.HasPrefix(e.ArchivedAt, date) {
			continue
		}
		switch e.Status {
		case StatusTriggered:
			summary.Completed = append(summary.Completed, e.Task)
		case StatusMissed:
			summary.Missed = append(summary.Missed, e.Task)
		}
	}
	return summary
}

// ActiveCount returns the size of the active set.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger.Active)
}

// Snapshot returns a deep copy of the ledger for read-only consumers.
func (s *Scheduler) Snapshot() Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Ledger{
		Active:  make([]Reminder, len(s.ledger.Active)),
		Archive: make([]ArchiveEntry, len(s.ledger.Archive)),
		NextID:  s.ledger.NextID,
	}
	copy(out.Active, s.ledger.Active)
	copy(out.Archive, s.ledger.Archive)
	return out
}

// pruneLocked removes expired archive entries. Caller must hold the lock.
func (s *Scheduler) pruneLocked(now time.Time) int {
	cutoff := now.AddDate(0, 0, -s.cfg.RetentionDays)

	kept := s.ledger.Archive[:0]
	for _, e := range s.ledger.Archive {
		archived, err := time.ParseInLocation(ArchiveTimeFormat, e.ArchivedAt, now.Location())
		if err != nil || !archived.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(s.ledger.Archive) - len(kept)
	s.ledger.Archive = kept
	return removed
}

// persistLocked writes the ledger document. Caller must hold the lock.
func (s *Scheduler) persistLocked() error {
	if err := s.store.Save(s.cfg.Path, &s.ledger); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist ledger")
		return err
	}
	return nil
}
