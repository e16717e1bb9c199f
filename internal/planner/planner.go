// Package planner computes, for a single resource group, the difference
// between its desired and observed state: how many servers to add or
// remove, which observed servers to remove first, and which survivors need
// an image replacement. Grounded on synchronize.py's compute_increment/
// filter_incorrect_images and spec §4.6.
package planner

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/cloud"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/naming"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

// Plan is the diff computed for a single group.
type Plan struct {
	GroupID      string
	Increment    int            // positive: create; negative: remove
	Removals     []cloud.Server // observed servers to remove, name-ascending
	Replacements []cloud.Server // observed survivors running a stale image
	ImageID      string         // resolved image id for this group
	FlavorID     string         // resolved flavor id for this group
	NetworkID    string         // resolved network id, shared across groups
}

// BucketByGroup partitions servers into the group(s) whose name prefix they
// match. A server matches at most one group because desiredstate.Validate
// rejects prefix-ambiguous group identifiers (spec §4.6, §9).
func BucketByGroup(servers []cloud.Server, groupIDs []string) map[string][]cloud.Server {
	buckets := make(map[string][]cloud.Server, len(groupIDs))
	for _, id := range groupIDs {
		buckets[id] = nil
	}
	for _, s := range servers {
		for _, id := range groupIDs {
			if naming.BelongsToGroup(s.Name, id) {
				buckets[id] = append(buckets[id], s)
				break
			}
		}
	}
	for id := range buckets {
		sort.Slice(buckets[id], func(i, j int) bool { return buckets[id][i].Name < buckets[id][j].Name })
	}
	return buckets
}

// Compute resolves image/flavor/network through c and produces the Plan for
// one group, given its already-bucketed, name-sorted observed servers.
func Compute(ctx context.Context, c cloud.Client, ds *desiredstate.DesiredState, groupID string, observed []cloud.Server, today time.Time) (*Plan, error) {
	group := ds.Deployment[groupID]

	effectiveCount := 0
	if group.InWindow(today) {
		effectiveCount = group.Count
	}
	increment := effectiveCount - len(observed)

	var removals []cloud.Server
	if increment < 0 {
		n := -increment
		if n > len(observed) {
			n = len(observed)
		}
		removals = observed[:n]
	}

	imageAlias, ok := ds.Images[group.ImageAlias()]
	if !ok {
		return nil, &vgcnerr.CloudAPIError{Operation: "resolve_image", Err: unresolvedAliasError(group.ImageAlias())}
	}
	imageID, err := resolveID(ctx, c.FindImage, imageAlias)
	if err != nil {
		return nil, &vgcnerr.CloudAPIError{Operation: "find_image", Err: err}
	}

	flavorID, err := resolveID(ctx, c.FindFlavor, group.Flavor)
	if err != nil {
		return nil, &vgcnerr.CloudAPIError{Operation: "find_flavor", Err: err}
	}

	networkID, err := resolveID(ctx, c.FindNetwork, ds.Network)
	if err != nil {
		return nil, &vgcnerr.CloudAPIError{Operation: "find_network", Err: err}
	}

	kept := observed[len(removals):]
	var replacements []cloud.Server
	for _, s := range kept {
		if s.ImageID != "" && s.ImageID != imageID {
			replacements = append(replacements, s)
		}
	}

	return &Plan{
		GroupID:      groupID,
		Increment:    increment,
		Removals:     removals,
		Replacements: replacements,
		ImageID:      imageID,
		FlavorID:     flavorID,
		NetworkID:    networkID,
	}, nil
}

type unresolvedAliasError string

func (e unresolvedAliasError) Error() string {
	return "no image configured for alias " + string(e)
}

// resolveID looks nameOrID up through resolve unless it is already a UUID,
// matching spec §4.6's "if the value is a UUID string it is used as-is" (and
// the original's identical `UUID(hex=...)` probe in create_server/
// filter_incorrect_images).
func resolveID(ctx context.Context, resolve func(context.Context, string) (string, error), nameOrID string) (string, error) {
	if _, err := uuid.Parse(nameOrID); err == nil {
		return nameOrID, nil
	}
	return resolve(ctx, nameOrID)
}
