package capacity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

func date(s string) *desiredstate.Date {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &desiredstate.Date{Time: t}
}

func TestValidate_EmptyDeployment(t *testing.T) {
	ds := &desiredstate.DesiredState{
		NodesInventory: map[string]int{"m1.small": 5},
		Deployment:     map[string]desiredstate.GroupConfig{},
	}
	assert.NoError(t, Validate(ds, time.Now()))
}

func TestValidate_S1_NoConflict(t *testing.T) {
	ds := &desiredstate.DesiredState{
		NodesInventory: map[string]int{"m1.small": 5},
		Deployment: map[string]desiredstate.GroupConfig{
			"compute": {Flavor: "m1.small", Count: 3},
		},
	}
	assert.NoError(t, Validate(ds, time.Now()))
}

func TestValidate_S3_ConflictOnDatedRange(t *testing.T) {
	ds := &desiredstate.DesiredState{
		NodesInventory: map[string]int{"m1.small": 2},
		Deployment: map[string]desiredstate.GroupConfig{
			"compute": {Flavor: "m1.small", Count: 2},
			"training-a": {
				Flavor: "m1.small",
				Count:  1,
				Start:  date("2025-01-10"),
				End:    date("2025-01-12"),
			},
		},
	}

	err := Validate(ds, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	var conflictErr *vgcnerr.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 3)
	for _, c := range conflictErr.Conflicts {
		assert.Equal(t, "m1.small", c.Flavor)
		assert.Equal(t, 3, c.Requested)
		assert.Equal(t, 2, c.Limit)
		assert.Contains(t, []string{"2025-01-10", "2025-01-11", "2025-01-12"}, c.Date)
	}
}

func TestValidate_ZeroCountContributesNothing(t *testing.T) {
	ds := &desiredstate.DesiredState{
		NodesInventory: map[string]int{"m1.small": 1},
		Deployment: map[string]desiredstate.GroupConfig{
			"compute": {Flavor: "m1.small", Count: 0},
		},
	}
	assert.NoError(t, Validate(ds, time.Now()))
}

func TestValidate_UndatedOverflowIsDateless(t *testing.T) {
	ds := &desiredstate.DesiredState{
		NodesInventory: map[string]int{"m1.small": 1},
		Deployment: map[string]desiredstate.GroupConfig{
			"compute":  {Flavor: "m1.small", Count: 1},
			"upload-a": {Flavor: "m1.small", Count: 1},
		},
	}
	err := Validate(ds, time.Now())
	require.Error(t, err)
	var conflictErr *vgcnerr.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, "", conflictErr.Conflicts[0].Date)
	assert.ElementsMatch(t, []string{"compute", "upload-a"}, conflictErr.Conflicts[0].GroupIDs)
}

func TestValidate_UnboundedStartTreatedAsSingleDay(t *testing.T) {
	// A group with only `start` set defaults `end` to today (spec §4.2 edge
	// case), so it is not unbounded in this implementation.
	ds := &desiredstate.DesiredState{
		NodesInventory: map[string]int{"m1.small": 1},
		Deployment: map[string]desiredstate.GroupConfig{
			"training-a": {Flavor: "m1.small", Count: 1, Start: date("2025-01-01")},
		},
	}
	assert.NoError(t, Validate(ds, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}
