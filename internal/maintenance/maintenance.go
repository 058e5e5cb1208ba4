// Package maintenance implements the maintenance gate (spec.md 4.E):
// callers consult Check before any mutating operation on a (db) or
// (db, branch) scope. Status lookups fail open, ported verbatim from
// original_source/src/cinchdb/core/maintenance_utils.py's
// check_maintenance_mode (catch-all except-pass around anything that
// isn't itself a raised maintenance violation).
package maintenance

import (
	"os"
	"time"

	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/metadatastore"
	"github.com/cinchdb/cinchdb/internal/model"
)

// transitionDelay is the artificial pause Gate.Enter/Gate.Exit
// otherwise take, suppressed by CINCHDB_SKIP_MAINTENANCE_DELAY (spec.md §6).
const transitionDelay = 150 * time.Millisecond

// Gate consults a metadata store before mutating operations.
type Gate struct {
	store *metadatastore.Store
}

// New returns a Gate backed by store.
func New(store *metadatastore.Store) *Gate {
	return &Gate{store: store}
}

// Check returns a MaintenanceError if database (and, when branch is
// non-empty, database/branch) is currently in maintenance. If the
// status lookup itself fails, the check fails open: the operation is
// allowed to proceed, matching the source's documented exception.
func (g *Gate) Check(op, database, branch string) error {
	if g.store == nil {
		return nil
	}

	if in, err := g.store.IsInMaintenance(model.ScopeDatabase, database); err == nil && in {
		info, _ := g.store.GetMaintenanceInfo(model.ScopeDatabase, database)
		reason := "database maintenance in progress"
		if info != nil && info.Reason != "" {
			reason = info.Reason
		}
		return cincherr.New(cincherr.Maintenance, op, "database '"+database+"' is in maintenance mode: "+reason)
	}

	if branch == "" {
		return nil
	}

	branchKey := database + "/" + branch
	if in, err := g.store.IsInMaintenance(model.ScopeBranch, branchKey); err == nil && in {
		info, _ := g.store.GetMaintenanceInfo(model.ScopeBranch, branchKey)
		reason := "branch maintenance in progress"
		if info != nil && info.Reason != "" {
			reason = info.Reason
		}
		return cincherr.New(cincherr.Maintenance, op, "branch '"+branchKey+"' is in maintenance mode: "+reason)
	}

	return nil
}

// Enter records a maintenance record and waits out the transition
// delay (skipped when CINCHDB_SKIP_MAINTENANCE_DELAY is set).
func (g *Gate) Enter(scope model.MaintenanceScope, key, reason string) error {
	if err := g.store.EnterMaintenance(scope, key, reason); err != nil {
		return cincherr.Wrap("maintenance.Enter", err)
	}
	delay()
	return nil
}

// Exit removes a maintenance record and waits out the transition delay.
func (g *Gate) Exit(scope model.MaintenanceScope, key string) error {
	if err := g.store.ExitMaintenance(scope, key); err != nil {
		return cincherr.Wrap("maintenance.Exit", err)
	}
	delay()
	return nil
}

func delay() {
	if os.Getenv("CINCHDB_SKIP_MAINTENANCE_DELAY") != "" {
		return
	}
	time.Sleep(transitionDelay)
}

// DatabaseKey and BranchKey build the maintenance keys used throughout
// the engine, so every caller agrees on the same key shape.
func DatabaseKey(database string) string { return database }
func BranchKey(database, branch string) string { return database + "/" + branch }
