// Package reconcile derives the full desired blocked-state from the
// persisted policy state and pushes it to the external shielding sink.
package reconcile

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/policy"
	"github.com/onelife/shieldd/internal/token"
)

// Reconciler merges the three policy sources into the two sink slots.
//
// Intention and Session share the app-level slot, so per-policy diffs
// would erase each other's contribution. The reconciler instead always
// recomputes from scratch and overwrites both slots unconditionally:
// the result depends only on the currently persisted state, never on
// call history, which makes concurrent reconciliations from any process
// converge on the same answer.
type Reconciler struct {
	store      domain.StateStore
	sink       domain.ShieldSink
	resolver   *token.Resolver
	intentions *policy.Intentions
	schedules  *policy.Schedules
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a reconciler.
func New(
	store domain.StateStore,
	sink domain.ShieldSink,
	resolver *token.Resolver,
	intentions *policy.Intentions,
	schedules *policy.Schedules,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		store:      store,
		sink:       sink,
		resolver:   resolver,
		intentions: intentions,
		schedules:  schedules,
		logger:     logger,
		now:        time.Now,
	}
}

// Reconcile recomputes the desired state at the current instant and
// pushes it to the sink. Safe to call from any process, at any time, as
// often as desired.
func (r *Reconciler) Reconcile() (domain.ShieldState, error) {
	now := r.now()

	// Housekeeping: expired allowance entries are advisory, purge
	// opportunistically so the map stays bounded.
	if err := r.intentions.PurgeExpiredAllowances(now); err != nil {
		r.logger.Warn("failed to purge expired allowances", zap.Error(err))
	}

	state := r.Desired(now)

	if err := r.sink.SetBlockedApps(state.Apps); err != nil {
		r.logger.Error("failed to push app block-set", zap.Error(err))
		return state, err
	}
	if err := r.sink.SetCategoryMode(state.Categories); err != nil {
		r.logger.Error("failed to push category mode", zap.Error(err))
		return state, err
	}

	r.logger.Debug("reconciled",
		zap.Int("blocked_apps", len(state.Apps)),
		zap.String("category_mode", string(state.Categories.Mode)))
	return state, nil
}

// Desired computes the full desired shield state for the instant t,
// reading everything fresh from the store. The output is deterministic:
// the app set is sorted by token identity.
func (r *Reconciler) Desired(t time.Time) domain.ShieldState {
	return domain.ShieldState{
		Apps:       r.desiredApps(t),
		Categories: r.desiredCategories(t),
	}
}

// desiredApps is the app-level slot: the session selection (while
// active) unioned with every active intention's app that is not
// currently allowed.
func (r *Reconciler) desiredApps(t time.Time) []domain.AppToken {
	byIdentity := make(map[string]domain.AppToken)

	if session := r.store.Session(); session.Active {
		for _, tok := range session.Selection.AppTokens {
			byIdentity[token.Identity(tok)] = tok
		}
	}

	for _, tok := range r.intentionTokens(t) {
		byIdentity[token.Identity(tok)] = tok
	}

	ids := make([]string, 0, len(byIdentity))
	for id := range byIdentity {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	apps := make([]domain.AppToken, 0, len(ids))
	for _, id := range ids {
		apps = append(apps, byIdentity[id])
	}
	return apps
}

// intentionTokens resolves the intention contribution. When any blocked
// hash cannot be resolved back to a token, it degrades to the
// conservative fallback: re-block every token from the intention
// selection that is not currently allowed. Silent permissiveness is the
// unsafe failure direction; over-blocking is the safe one.
func (r *Reconciler) intentionTokens(t time.Time) []domain.AppToken {
	hashes := r.intentions.BlockedHashes(t)

	tokens := make([]domain.AppToken, 0, len(hashes))
	for _, hash := range hashes {
		tok, ok := r.resolver.Resolve(hash)
		if !ok {
			r.logger.Warn("token resolution miss, falling back to blocking full selection",
				zap.String("hash", truncHash(hash)))
			return r.selectionFallback(t)
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// selectionFallback blocks every selection token without an unexpired
// allowance.
func (r *Reconciler) selectionFallback(t time.Time) []domain.AppToken {
	var tokens []domain.AppToken
	for _, tok := range r.store.IntentionSelection().AppTokens {
		if r.intentions.IsCurrentlyAllowed(token.Identity(tok), t) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// desiredCategories is the category-level slot: block all categories
// except the union of active schedules' exclusions, unless no schedule
// is active or a break is in effect (a break suspends schedule blocking
// entirely, not narrows it).
func (r *Reconciler) desiredCategories(t time.Time) domain.CategoryPolicy {
	active := r.schedules.ActiveAt(t)
	if len(active) == 0 || r.schedules.OnBreakAt(t) {
		return domain.Unrestricted()
	}

	var exclusions []domain.AppToken
	for _, hash := range r.schedules.ExcludedUnion(t) {
		tok, ok := r.resolver.Resolve(hash)
		if !ok {
			// Dropping an exclusion blocks more, never less.
			r.logger.Warn("could not resolve excluded app, keeping it blocked",
				zap.String("hash", truncHash(hash)))
			continue
		}
		exclusions = append(exclusions, tok)
	}

	sort.Slice(exclusions, func(i, j int) bool {
		return token.Identity(exclusions[i]) < token.Identity(exclusions[j])
	})

	return domain.CategoryPolicy{
		Mode:       domain.CategoryBlockAllExcept,
		Exclusions: exclusions,
		WebDomains: true,
	}
}

func truncHash(hash string) string {
	if len(hash) <= 20 {
		return hash
	}
	return hash[:20] + "..."
}
