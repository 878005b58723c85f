// Package policy implements the three policy sources: per-app intentions
// with daily open quotas, time-window schedules with breaks, and explicit
// blocking sessions.
package policy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/token"
)

// DefaultSessionMinutes is the unblock window granted when an app is
// opened through the shield but no matching intention exists. The app
// still gets a bounded window rather than being left unresolved.
const DefaultSessionMinutes = 5

// Intentions manages per-app quota/allowance state.
//
// Counter updates are read-modify-write with no cross-process lock;
// a concurrent increment from another process can lose an update. This
// is accepted: a lost increment only makes a quota check slightly more
// permissive, never over-enforcing.
type Intentions struct {
	store  domain.StateStore
	logger *zap.Logger
	now    func() time.Time
}

// NewIntentions creates the intention policy service.
func NewIntentions(store domain.StateStore, logger *zap.Logger) *Intentions {
	return &Intentions{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// List returns all stored intentions with stale days rolled over:
// when LastResetDate is not today the streak is evaluated and
// CurrentOpens reads as 0. The store is not mutated; persistence of
// the rollover happens lazily on the next RecordOpen or DailyReset.
func (s *Intentions) List() []domain.Intention {
	now := s.now()
	intentions := s.store.Intentions()
	for i := range intentions {
		intentions[i] = normalizeDaily(intentions[i], now)
	}
	return intentions
}

// Get returns the normalized intention for a token identity.
func (s *Intentions) Get(hash string) (domain.Intention, bool) {
	for _, i := range s.List() {
		if i.TokenHash == hash {
			return i, true
		}
	}
	return domain.Intention{}, false
}

// Add creates an intention for the app and records its token in the
// intention selection for later display lookup.
func (s *Intentions) Add(tok domain.AppToken, displayName string, maxOpensPerDay, sessionMinutes int) (domain.Intention, error) {
	hash := token.Identity(tok)

	intentions := s.store.Intentions()
	for _, existing := range intentions {
		if existing.TokenHash == hash {
			return domain.Intention{}, fmt.Errorf("intention already exists for %q", existing.DisplayName)
		}
	}

	now := s.now()
	intention := domain.Intention{
		ID:                     uuid.NewString(),
		TokenHash:              hash,
		DisplayName:            displayName,
		MaxOpensPerDay:         maxOpensPerDay,
		SessionDurationMinutes: sessionMinutes,
		IsActive:               true,
		CreatedAt:              now,
		LastResetDate:          now,
	}

	intentions = append(intentions, intention)
	if err := s.store.SaveIntentions(intentions); err != nil {
		return domain.Intention{}, err
	}

	// Keep the full token in the selection so icons and the re-shield
	// fallback can recover it.
	sel := s.store.IntentionSelection()
	if !selectionContains(sel, hash) {
		sel.AppTokens = append(sel.AppTokens, tok)
		if err := s.store.SaveIntentionSelection(sel); err != nil {
			return domain.Intention{}, err
		}
	}

	return intention, nil
}

// Update replaces the stored intention with the same ID.
func (s *Intentions) Update(updated domain.Intention) error {
	intentions := s.store.Intentions()
	for i := range intentions {
		if intentions[i].ID == updated.ID {
			intentions[i] = updated
			return s.store.SaveIntentions(intentions)
		}
	}
	return fmt.Errorf("intention %s not found", updated.ID)
}

// Remove deletes the intention with the given ID.
func (s *Intentions) Remove(id string) error {
	intentions := s.store.Intentions()
	kept := intentions[:0]
	for _, i := range intentions {
		if i.ID != id {
			kept = append(kept, i)
		}
	}
	if len(kept) == len(intentions) {
		return fmt.Errorf("intention %s not found", id)
	}
	return s.store.SaveIntentions(kept)
}

// RecordOpen registers an open attempt for the app: resets a stale daily
// counter, increments, persists, and returns the unblock window in
// minutes. Quota affects presentation only - a 4th open past a limit of
// 3 still gets a bounded window. Persistence failures are logged and the
// window granted anyway; the handler process must never abort.
func (s *Intentions) RecordOpen(hash string) int {
	now := s.now()
	minutes := DefaultSessionMinutes

	intentions := s.store.Intentions()
	for i := range intentions {
		if intentions[i].TokenHash != hash {
			continue
		}

		intentions[i] = normalizeDaily(intentions[i], now)
		intentions[i].CurrentOpens++
		minutes = intentions[i].SessionDurationMinutes

		if err := s.store.SaveIntentions(intentions); err != nil {
			s.logger.Warn("failed to persist open count",
				zap.String("hash", shortHash(hash)),
				zap.Error(err))
		}
		return minutes
	}

	s.logger.Debug("no matching intention, granting default window",
		zap.String("hash", shortHash(hash)),
		zap.Int("minutes", minutes))
	return minutes
}

// IsCurrentlyAllowed reports whether an unexpired allowance exists for
// the app at the given instant.
func (s *Intentions) IsCurrentlyAllowed(hash string, now time.Time) bool {
	until, ok := s.store.Allowances()[hash]
	return ok && now.Before(until)
}

// Allow records a temporary exemption from intention-based blocking.
func (s *Intentions) Allow(hash string, until time.Time) error {
	allowed := s.store.Allowances()
	allowed[hash] = until
	return s.store.SaveAllowances(allowed)
}

// ClearAllowance removes the exemption for one app.
func (s *Intentions) ClearAllowance(hash string) error {
	allowed := s.store.Allowances()
	if _, ok := allowed[hash]; !ok {
		return nil
	}
	delete(allowed, hash)
	return s.store.SaveAllowances(allowed)
}

// PurgeExpiredAllowances drops entries whose expiry has passed. Entries
// are advisory hints; this is housekeeping, not enforcement.
func (s *Intentions) PurgeExpiredAllowances(now time.Time) error {
	allowed := s.store.Allowances()
	changed := false
	for hash, until := range allowed {
		if !now.Before(until) {
			delete(allowed, hash)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.store.SaveAllowances(allowed)
}

// DailyReset rolls every stale intention over to the given day. Each
// intention carries its own LastResetDate marker, so a rollover another
// process already performed is not repeated and the shared counter
// marker cannot mask it. Reports whether any intention rolled.
func (s *Intentions) DailyReset(now time.Time) (bool, error) {
	intentions := s.store.Intentions()
	rolled := false
	for i := range intentions {
		if sameCalendarDay(intentions[i].LastResetDate, now) {
			continue
		}
		intentions[i] = rollOver(intentions[i], now)
		rolled = true
	}
	if !rolled {
		return false, nil
	}
	return true, s.store.SaveIntentions(intentions)
}

// BlockedHashes is the intention contribution to the merge: every active
// intention's app that is not currently allowed.
func (s *Intentions) BlockedHashes(now time.Time) []string {
	allowed := s.store.Allowances()
	var hashes []string
	for _, i := range s.store.Intentions() {
		if !i.IsActive {
			continue
		}
		if until, ok := allowed[i.TokenHash]; ok && now.Before(until) {
			continue
		}
		hashes = append(hashes, i.TokenHash)
	}
	return hashes
}

// rollOver evaluates the previous day's discipline and starts a fresh
// one: at or under quota extends the streak, over quota breaks it, and
// the counter clears only after the streak is decided.
func rollOver(i domain.Intention, now time.Time) domain.Intention {
	if i.CurrentOpens <= i.MaxOpensPerDay {
		i.StreakDays++
	} else {
		i.StreakDays = 0
	}
	i.CurrentOpens = 0
	i.LastResetDate = now
	return i
}

// normalizeDaily rolls a stale intention over in place. CurrentOpens is
// only meaningful together with LastResetDate.
func normalizeDaily(i domain.Intention, now time.Time) domain.Intention {
	if !sameCalendarDay(i.LastResetDate, now) {
		i = rollOver(i, now)
	}
	return i
}

// sameCalendarDay compares calendar days, not 24h intervals, so clock
// changes and timezone shifts follow calendar semantics.
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func selectionContains(sel domain.Selection, hash string) bool {
	for _, t := range sel.AppTokens {
		if token.Identity(t) == hash {
			return true
		}
	}
	return false
}

// shortHash truncates an identity for log lines.
func shortHash(hash string) string {
	if len(hash) <= 20 {
		return hash
	}
	return hash[:20] + "..."
}
