// Package capacity implements the conflict/capacity checker: it validates a
// DesiredState against the fixed hardware inventory, accounting for
// time-windowed training reservations, before the Reconciler is allowed to
// touch the cloud. See spec §4.2.
package capacity

import (
	"sort"
	"time"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

const dateLayout = "2006-01-02"

// Validate checks that no flavor's per-day active reservation exceeds its
// inventory limit, for every day any dated group is active. today fills in
// a dated group's missing start or end bound (spec §4.2's edge case);
// undated groups never consult it and are folded into base_undated, which
// counts on every day.
//
// Returns a *vgcnerr.ConflictError naming every offending (flavor, date,
// groups) tuple if any conflict exists.
func Validate(ds *desiredstate.DesiredState, today time.Time) error {
	baseUndated := map[string]int{}
	type dayKey struct {
		flavor string
		date   string
	}
	perDay := map[dayKey]int{}
	contributors := map[dayKey][]string{}

	ids := ds.GroupIDs()
	sort.Strings(ids)

	for _, id := range ids {
		group := ds.Deployment[id]
		if !group.IsDated() {
			baseUndated[group.Flavor] += group.Count
			continue
		}

		start, end := group.Window(today)
		for d := truncate(start); !d.After(truncate(end)); d = d.AddDate(0, 0, 1) {
			key := dayKey{flavor: group.Flavor, date: d.Format(dateLayout)}
			perDay[key] += group.Count
			contributors[key] = append(contributors[key], id)
		}
	}

	var conflicts []vgcnerr.ConflictRecord
	for flavor, limit := range ds.NodesInventory {
		base := baseUndated[flavor]
		if base > limit {
			conflicts = append(conflicts, vgcnerr.ConflictRecord{
				Flavor:    flavor,
				Requested: base,
				Limit:     limit,
				GroupIDs:  undatedContributors(ds, flavor),
			})
		}
	}

	keys := make([]dayKey, 0, len(perDay))
	for key := range perDay {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].flavor != keys[j].flavor {
			return keys[i].flavor < keys[j].flavor
		}
		return keys[i].date < keys[j].date
	})

	for _, key := range keys {
		limit, ok := ds.NodesInventory[key.flavor]
		if !ok {
			continue
		}
		requested := baseUndated[key.flavor] + perDay[key]
		if requested > limit {
			conflicts = append(conflicts, vgcnerr.ConflictRecord{
				Flavor:    key.flavor,
				Date:      key.date,
				Requested: requested,
				Limit:     limit,
				GroupIDs:  contributors[key],
			})
		}
	}

	if len(conflicts) > 0 {
		return &vgcnerr.ConflictError{Conflicts: conflicts}
	}
	return nil
}

func undatedContributors(ds *desiredstate.DesiredState, flavor string) []string {
	ids := ds.GroupIDs()
	sort.Strings(ids)
	var out []string
	for _, id := range ids {
		group := ds.Deployment[id]
		if !group.IsDated() && group.Flavor == flavor {
			out = append(out, id)
		}
	}
	return out
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
