// Package reconciler is the top-level orchestrator: it validates capacity,
// lists the live fleet, buckets it by group, plans each group's diff, and
// applies creates/removes/replacements against the cloud, isolating
// per-server failures so one bad apple does not abort the run. Grounded on
// synchronize.py's synchronize_infrastructure (spec §4.7).
package reconciler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/capacity"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/cloud"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/log"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/metrics"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/naming"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/planner"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/terminate"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/userdata"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

// Reconciler drives a single reconciliation pass against one cloud.
type Reconciler struct {
	Cloud      cloud.Client
	Terminator *terminate.Terminator
	UserData   userdata.Renderer
	Now        func() time.Time // defaults to time.Now; overridable for tests
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// GroupDiff is the human-readable summary of one group's planned changes,
// logged before any destructive action is taken (spec §4.7 step 4).
type GroupDiff struct {
	GroupID      string
	Add          int
	Remove       int
	ReplaceCount int
}

// Reconcile runs one single-shot pass: Capacity Validator first (aborting
// on conflict), then list/bucket/plan every group, log the diff, and
// (unless dryRun) apply it. Validation, capacity, listing, and planning
// failures are returned before anything is applied; after apply, the error
// is non-nil iff any action failed, aggregating every per-group failure via
// go-multierror so a complete picture survives a partial run.
func (r *Reconciler) Reconcile(ctx context.Context, ds *desiredstate.DesiredState, dryRun bool) error {
	logger := log.WithComponent("reconciler")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconcileDuration)

	if err := ds.Validate(); err != nil {
		metrics.ReconcileTotal.WithLabelValues("config_error").Inc()
		return err
	}
	if r.Terminator != nil {
		r.Terminator.Network = ds.Network
	}
	if err := capacity.Validate(ds, r.now()); err != nil {
		var conflictErr *vgcnerr.ConflictError
		if errors.As(err, &conflictErr) {
			for _, c := range conflictErr.Conflicts {
				metrics.CapacityConflictsTotal.WithLabelValues(c.Flavor).Inc()
			}
		}
		metrics.ReconcileTotal.WithLabelValues("capacity_conflict").Inc()
		return err
	}

	servers, err := r.cloudListServers(ctx)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("config_error").Inc()
		return &vgcnerr.CloudAPIError{Operation: "list_servers", Err: err}
	}

	groupIDs := ds.GroupIDs()
	sort.Strings(groupIDs)
	buckets := planner.BucketByGroup(servers, groupIDs)

	plans := make(map[string]*planner.Plan, len(groupIDs))
	for _, id := range groupIDs {
		group := ds.Deployment[id]
		effectiveCount := 0
		if group.InWindow(r.now()) {
			effectiveCount = group.Count
		}
		metrics.GroupDesiredCount.WithLabelValues(id).Set(float64(effectiveCount))
		metrics.GroupObservedCount.WithLabelValues(id).Set(float64(len(buckets[id])))

		plan, err := planner.Compute(ctx, r.Cloud, ds, id, buckets[id], r.now())
		if err != nil {
			metrics.ReconcileTotal.WithLabelValues("config_error").Inc()
			return fmt.Errorf("planning group %q: %w", id, err)
		}
		plans[id] = plan
	}

	diffs := logPlan(logger, groupIDs, plans)
	if !anyChanges(diffs) {
		logger.Info().Msg("no changes needed")
	}
	if dryRun {
		metrics.ReconcileTotal.WithLabelValues("success").Inc()
		return nil
	}

	var result *multierror.Error
	existingNames := existingNameSet(servers)

	for _, id := range groupIDs {
		plan := plans[id]
		group := ds.Deployment[id]
		groupLogger := log.WithGroup(logger, id)
		outcome := GroupResult{GroupID: id}

		if plan.Increment > 0 {
			for i := 0; i < plan.Increment; i++ {
				if err := r.createServer(ctx, ds, id, group, plan, existingNames); err != nil {
					groupLogger.Error().Err(err).Msg("failed to create server")
					metrics.ServersCreatedTotal.WithLabelValues(id, "error").Inc()
					result = multierror.Append(result, fmt.Errorf("group %s: create: %w", id, err))
					outcome.Failed++
				} else {
					metrics.ServersCreatedTotal.WithLabelValues(id, "active").Inc()
					outcome.Added++
				}
			}
		} else if plan.Increment < 0 {
			mode := "brutal"
			if ds.Graceful {
				mode = "graceful"
			}
			for _, server := range plan.Removals {
				groupLogger.Info().Str("server", server.Name).Msg("removing surplus server")
				if err := r.removeServer(ctx, ds, server); err != nil {
					groupLogger.Error().Err(err).Str("server", server.Name).Msg("failed to remove server")
					result = multierror.Append(result, fmt.Errorf("group %s: remove %s: %w", id, server.Name, err))
					outcome.Failed++
				} else {
					metrics.ServersRemovedTotal.WithLabelValues(id, mode).Inc()
					outcome.Removed++
				}
				delete(existingNames, server.Name)
			}
		}

		for _, server := range plan.Replacements {
			groupLogger.Info().Str("server", server.Name).Msg("replacing server with stale image")
			if err := r.removeServer(ctx, ds, server); err != nil {
				result = multierror.Append(result, fmt.Errorf("group %s: remove stale %s: %w", id, server.Name, err))
				outcome.Failed++
				continue
			}
			if err := r.createNamed(ctx, ds, id, group, plan, server.Name); err != nil {
				result = multierror.Append(result, fmt.Errorf("group %s: recreate %s: %w", id, server.Name, err))
				outcome.Failed++
			} else {
				metrics.ServersReplacedTotal.WithLabelValues(id).Inc()
				outcome.Replaced++
			}
		}

		logGroupResult(groupLogger, outcome)
	}

	if err := result.ErrorOrNil(); err != nil {
		metrics.ReconcileTotal.WithLabelValues("partial_failure").Inc()
		return err
	}
	metrics.ReconcileTotal.WithLabelValues("success").Inc()
	return nil
}

// cloudListServers times the initial fleet listing, the one cloud API call
// not already wrapped inside planner/terminate.
func (r *Reconciler) cloudListServers(ctx context.Context) ([]cloud.Server, error) {
	timer := metrics.NewTimer()
	servers, err := r.Cloud.ListServers(ctx)
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.CloudAPIRequestsTotal.WithLabelValues("list_servers", result).Inc()
	timer.ObserveDurationVec(metrics.CloudAPIDuration, "list_servers")
	return servers, err
}

// logPlan logs the human-readable per-group diff (spec §4.7 step 4) and
// returns it for the caller's own "any changes at all" check.
func logPlan(logger zerolog.Logger, groupIDs []string, plans map[string]*planner.Plan) []GroupDiff {
	diffs := make([]GroupDiff, 0, len(groupIDs))
	for _, id := range groupIDs {
		plan := plans[id]
		diff := GroupDiff{GroupID: id, ReplaceCount: len(plan.Replacements)}
		if plan.Increment > 0 {
			diff.Add = plan.Increment
		} else if plan.Increment < 0 {
			diff.Remove = -plan.Increment
		}
		diffs = append(diffs, diff)

		if diff.Add == 0 && diff.Remove == 0 && diff.ReplaceCount == 0 {
			continue
		}
		event := logger.Info().Str("group", id)
		if diff.Add > 0 {
			event = event.Int("add", diff.Add)
		}
		if diff.Remove > 0 {
			event = event.Int("remove", diff.Remove)
		}
		if diff.ReplaceCount > 0 {
			event = event.Int("replace", diff.ReplaceCount)
		}
		event.Msg("planned change")
	}
	return diffs
}

// GroupResult is the actual outcome of one group's apply step, logged once
// the group's creates/removes/replacements have all been attempted. This is
// the "added / removed / replaced / failed" summary spec §4.7 requires as a
// final log line, distinct from the pre-apply plan in GroupDiff.
type GroupResult struct {
	GroupID  string
	Added    int
	Removed  int
	Replaced int
	Failed   int
}

func logGroupResult(logger zerolog.Logger, r GroupResult) {
	event := logger.Info().
		Int("added", r.Added).
		Int("removed", r.Removed).
		Int("replaced", r.Replaced).
		Int("failed", r.Failed)
	event.Msg("group reconciled")
}

func anyChanges(diffs []GroupDiff) bool {
	for _, d := range diffs {
		if d.Add != 0 || d.Remove != 0 || d.ReplaceCount != 0 {
			return true
		}
	}
	return false
}

func existingNameSet(servers []cloud.Server) map[string]bool {
	names := make(map[string]bool, len(servers))
	for _, s := range servers {
		names[s.Name] = true
	}
	return names
}

func (r *Reconciler) createServer(ctx context.Context, ds *desiredstate.DesiredState, groupID string, group desiredstate.GroupConfig, plan *planner.Plan, existingNames map[string]bool) error {
	name, err := naming.UniqueName(naming.GroupPrefix(groupID), existingNames)
	if err != nil {
		return err
	}
	existingNames[name] = true
	return r.createNamed(ctx, ds, groupID, group, plan, name)
}

func (r *Reconciler) createNamed(ctx context.Context, ds *desiredstate.DesiredState, groupID string, group desiredstate.GroupConfig, plan *planner.Plan, name string) error {
	var userData string
	if r.UserData != nil {
		rendered, err := r.UserData.Render(name, groupID, group)
		if err != nil {
			return fmt.Errorf("rendering user data: %w", err)
		}
		userData = base64.StdEncoding.EncodeToString([]byte(rendered))
	}

	spec := cloud.CreateServerSpec{
		Name:             name,
		FlavorRef:        plan.FlavorID,
		ImageRef:         plan.ImageID,
		KeyName:          ds.SSHKey,
		AvailabilityZone: "nova",
		NetworkIDs:       []string{plan.NetworkID},
		UserDataBase64:   userData,
		SecurityGroups:   ds.SecGroups,
	}
	if group.Volume != nil {
		spec.BlockDeviceMappings = []cloud.BlockDevice{{
			BootIndex:           bootIndex(group.Volume.Boot),
			SourceType:          "blank",
			DestinationType:     "volume",
			VolumeSize:          group.Volume.Size,
			VolumeType:          group.Volume.Type,
			DeleteOnTermination: true,
		}}
	}

	createTimer := metrics.NewTimer()
	server, err := r.Cloud.CreateServer(ctx, spec)
	createResult := "success"
	if err != nil {
		createResult = "error"
	}
	metrics.CloudAPIRequestsTotal.WithLabelValues("create_server", createResult).Inc()
	createTimer.ObserveDurationVec(metrics.CloudAPIDuration, "create_server")
	if err != nil {
		return &vgcnerr.CloudAPIError{Operation: "create_server", Err: err}
	}

	final, err := terminate.WaitForState(ctx, r.Cloud, *server, []cloud.ServerStatus{cloud.StatusActive, cloud.StatusError}, 600*time.Second, 10*time.Second)
	if err != nil {
		return err
	}
	if final.Status == cloud.StatusError {
		log.WithComponent("reconciler").Warn().Str("server", name).Str("fault", final.Fault).Msg("server entered ERROR state, terminating")
		if err := r.Terminator.BrutallyTerminate(ctx, *final); err != nil {
			return err
		}
		return &vgcnerr.ServerBootError{Server: name, Fault: final.Fault}
	}
	return nil
}

func bootIndex(boot bool) int {
	if boot {
		return 0
	}
	return -1
}

func (r *Reconciler) removeServer(ctx context.Context, ds *desiredstate.DesiredState, server cloud.Server) error {
	if ds.Graceful {
		return r.Terminator.GracefullyTerminate(ctx, server)
	}
	return r.Terminator.BrutallyTerminate(ctx, server)
}
