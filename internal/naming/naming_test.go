package naming

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

func TestUniqueName_Ascending(t *testing.T) {
	existing := map[string]bool{
		"vgcnbwc-compute-0000": true,
		"vgcnbwc-compute-0001": true,
	}

	name, err := UniqueName("vgcnbwc-compute", existing)
	require.NoError(t, err)
	assert.Equal(t, "vgcnbwc-compute-0002", name)
}

func TestUniqueName_EmptyExisting(t *testing.T) {
	name, err := UniqueName("vgcnbwc-compute", nil)
	require.NoError(t, err)
	assert.Equal(t, "vgcnbwc-compute-0000", name)
}

func TestUniqueName_AllDistinctAcrossCalls(t *testing.T) {
	existing := map[string]bool{}
	seen := map[string]bool{}

	for i := 0; i < 500; i++ {
		name, err := UniqueName("vgcnbwc-compute", existing)
		require.NoError(t, err)
		require.False(t, seen[name], "name %s generated twice", name)
		seen[name] = true
		existing[name] = true
	}
	assert.Len(t, seen, 500)
}

func TestUniqueName_Exhausted(t *testing.T) {
	existing := map[string]bool{}
	for i := 0; i < slots; i++ {
		existing[fmt.Sprintf("vgcnbwc-compute-%04d", i)] = true
	}

	_, err := UniqueName("vgcnbwc-compute", existing)
	require.Error(t, err)
	var exhausted *vgcnerr.NamesExhausted
	assert.ErrorAs(t, err, &exhausted)
}

func TestBelongsToGroup_PrefixAmbiguity(t *testing.T) {
	// The trailing separator keeps "compute" from absorbing "computegpu".
	// Identifiers that are "-"-delimited prefixes of each other ("compute"
	// and "compute-general") still overlap and are rejected by
	// desiredstate.Validate instead.
	assert.True(t, BelongsToGroup("vgcnbwc-compute-general-0000", "compute-general"))
	assert.False(t, BelongsToGroup("vgcnbwc-computegpu-0000", "compute"))
	assert.True(t, BelongsToGroup("vgcnbwc-compute-0000", "compute"))
}
