// Package cascade rewrites cascading-delete plans so that archive-aware
// rows are stamped or unstamped in place instead of being removed.
package cascade

import (
	"time"

	"github.com/mesh-intelligence/attic/internal/collector"
	"github.com/mesh-intelligence/attic/pkg/types"
)

// Rewriter turns a collected delete plan into an archive or unarchive plan.
// The zero value uses types.DefaultUnarchiveWindow.
type Rewriter struct {
	// Window is how far a row's archive stamp may sit from the stamp being
	// undone and still be restored by an unarchive.
	Window time.Duration
}

func (r Rewriter) window() time.Duration {
	if r.Window <= 0 {
		return types.DefaultUnarchiveWindow
	}
	return r.Window
}

// ForArchive rewrites plan for an archive stamped at now. Active rows of
// archive-aware types get archived_at = now and leave the delete set; rows
// already archived are left alone. Bulk deletes on archive-aware types
// become bulk updates restricted to active rows. Everything else runs as
// collected.
func (r Rewriter) ForArchive(plan *collector.Plan, now time.Time) *collector.Plan {
	for _, e := range plan.Entities() {
		if !e.IsArchiveAware() {
			continue
		}
		var active []collector.Instance
		for _, inst := range plan.Instances(e.Name) {
			if inst.ArchivedAt == nil {
				active = append(active, inst)
			}
		}
		plan.AddFieldUpdate(e, e.ArchiveField, now, active)
		plan.Remove(e.Name)
	}

	for i, q := range plan.FastDeletes {
		if q.IsNone() || !q.Entity.IsArchiveAware() {
			continue
		}
		plan.AddQueryUpdate(q.IsNull(q.Entity.ArchiveField), q.Entity.ArchiveField, now)
		plan.FastDeletes[i] = q.None()
	}
	return plan
}

// ForUnarchive rewrites plan to undo the archive stamped at ref. Rows of
// archive-aware types whose stamp lies within the window of ref get
// archived_at = NULL; rows archived at some other time stay archived.
// Nothing is deleted: the delete set is emptied and bulk deletes are
// neutralized. Set-null and set-default updates run as collected. now is
// unused.
func (r Rewriter) ForUnarchive(plan *collector.Plan, ref, now time.Time) *collector.Plan {
	w := r.window()
	lo, hi := ref.Add(-w), ref.Add(w)

	for _, e := range plan.Entities() {
		if e.IsArchiveAware() {
			var matched []collector.Instance
			for _, inst := range plan.Instances(e.Name) {
				if withinWindow(inst.ArchivedAt, lo, hi) {
					matched = append(matched, inst)
				}
			}
			plan.AddFieldUpdate(e, e.ArchiveField, nil, matched)
		}
		plan.Remove(e.Name)
	}

	for i, q := range plan.FastDeletes {
		if q.IsNone() {
			continue
		}
		if q.Entity.IsArchiveAware() {
			plan.AddQueryUpdate(q.Between(q.Entity.ArchiveField, lo, hi), q.Entity.ArchiveField, nil)
		}
		plan.FastDeletes[i] = q.None()
	}
	return plan
}

// withinWindow reports whether stamp is set and lies in [lo, hi].
func withinWindow(stamp *time.Time, lo, hi time.Time) bool {
	if stamp == nil {
		return false
	}
	return !stamp.Before(lo) && !stamp.After(hi)
}

// RewriteForArchive is Rewriter{}.ForArchive.
func RewriteForArchive(plan *collector.Plan, now time.Time) *collector.Plan {
	return Rewriter{}.ForArchive(plan, now)
}

// RewriteForUnarchive is Rewriter{}.ForUnarchive, using the default window.
func RewriteForUnarchive(plan *collector.Plan, ref, now time.Time) *collector.Plan {
	return Rewriter{}.ForUnarchive(plan, ref, now)
}
