// Package desiredstate defines the document the reconciler is asked to
// converge the fleet towards, and the structural checks ("is this document
// even well-formed") that run before the Capacity Validator's day-by-day
// inventory check.
package desiredstate

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is an inclusive calendar day, serialized as YAML's ISO date form.
type Date struct {
	time.Time
}

// UnmarshalYAML accepts either a quoted or bare ISO date.
func (d *Date) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// gopkg.in/yaml.v3 decodes unquoted YAML dates as time.Time already;
		// fall back to that representation.
		var t time.Time
		if err2 := unmarshal(&t); err2 != nil {
			return err
		}
		d.Time = t
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// MarshalYAML renders the date back to its ISO form.
func (d Date) MarshalYAML() (interface{}, error) {
	return d.Time.Format(dateLayout), nil
}

// Volume describes an attached or boot volume for a group, in place of
// booting directly from an image.
type Volume struct {
	Size int    `yaml:"size"`
	Type string `yaml:"type"`
	Boot bool   `yaml:"boot"`
}

// GroupConfig is the configuration for a single resource group (a uniform
// subset of the fleet: compute workers, upload nodes, interactive nodes, or
// a time-bounded training cohort).
type GroupConfig struct {
	Count                    int     `yaml:"count"`
	Flavor                   string  `yaml:"flavor"`
	Image                    string  `yaml:"image,omitempty"`
	Group                    string  `yaml:"group,omitempty"`
	Start                    *Date   `yaml:"start,omitempty"`
	End                      *Date   `yaml:"end,omitempty"`
	Volume                   *Volume `yaml:"volume,omitempty"`
	SecondaryHTCondorCluster bool    `yaml:"secondary_htcondor_cluster,omitempty"`
}

// ImageAlias returns the alias this group's image resolves through,
// defaulting to "default" per spec §3.
func (g GroupConfig) ImageAlias() string {
	if g.Image == "" {
		return "default"
	}
	return g.Image
}

// GroupTag returns the logical role tag for this group, defaulting to the
// group identifier itself per spec §3.
func GroupTag(id string, g GroupConfig) string {
	if g.Group == "" {
		return id
	}
	return g.Group
}

// IsDated reports whether the group has a start or end bound.
func (g GroupConfig) IsDated() bool {
	return g.Start != nil || g.End != nil
}

// Window resolves the group's effective [start, end] window, defaulting
// missing bounds to today per spec §4.2's edge-case note.
func (g GroupConfig) Window(today time.Time) (start, end time.Time) {
	start, end = today, today
	if g.Start != nil {
		start = g.Start.Time
	}
	if g.End != nil {
		end = g.End.Time
	}
	return start, end
}

// InWindow reports whether today falls within the group's effective window.
// Groups without any bound are always in window.
func (g GroupConfig) InWindow(today time.Time) bool {
	start, end := g.Window(today)
	d := truncateToDay(today)
	return !d.Before(truncateToDay(start)) && !d.After(truncateToDay(end))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DesiredState is the full resource definition document (resources.yaml).
type DesiredState struct {
	Images          map[string]string      `yaml:"images"`
	NodesInventory  map[string]int         `yaml:"nodes_inventory"`
	Network         string                 `yaml:"network"`
	SSHKey          string                 `yaml:"sshkey"`
	SecGroups       []string               `yaml:"secgroups,omitempty"`
	PubKeys         []string               `yaml:"pubkeys,omitempty"`
	Graceful        bool                   `yaml:"graceful"`
	Deployment      map[string]GroupConfig `yaml:"deployment"`
}

// GroupIDs returns the deployment's group identifiers in Go map iteration
// order, which is not stable: callers that need a deterministic order sort
// the result, and the Splitter carries document order separately.
func (d *DesiredState) GroupIDs() []string {
	ids := make([]string, 0, len(d.Deployment))
	for id := range d.Deployment {
		ids = append(ids, id)
	}
	return ids
}

// ValidationError describes a structural problem with a DesiredState found
// before any capacity accounting runs.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid desired state:\n  - " + strings.Join(e.Problems, "\n  - ")
}

// Validate checks structural invariants from spec §3: every group's flavor
// is a known inventory key, and group identifiers are pairwise
// non-prefixing once namespaced (so prefix-bucketing in the Planner stays
// unambiguous).
func (d *DesiredState) Validate() error {
	var problems []string

	if _, ok := d.Images["default"]; !ok {
		problems = append(problems, "images: a \"default\" alias is required")
	}

	for id, group := range d.Deployment {
		if _, ok := d.NodesInventory[group.Flavor]; !ok {
			problems = append(problems, fmt.Sprintf(
				"group %q: flavor %q is not a key of nodes_inventory", id, group.Flavor,
			))
		}
	}

	ids := d.GroupIDs()
	for i, a := range ids {
		for j, b := range ids {
			if i == j {
				continue
			}
			if strings.HasPrefix("vgcnbwc-"+b+"-", "vgcnbwc-"+a+"-") {
				problems = append(problems, fmt.Sprintf(
					"group identifiers %q and %q are ambiguous under prefix bucketing", a, b,
				))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
