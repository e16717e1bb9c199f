package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"
)

func entryByID(doc *Document, id string) (Entry, bool) {
	for _, e := range doc.Deployment {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func TestAllocate_RejectsOutOfRangeFraction(t *testing.T) {
	doc := &Document{Deployment: []Entry{{ID: "compute", Config: desiredstate.GroupConfig{Count: 1, Flavor: "m1.small"}}}}

	_, err := Allocate(doc, -0.1)
	require.Error(t, err)
	var fracErr *FractionError
	require.ErrorAs(t, err, &fracErr)

	_, err = Allocate(doc, 1.1)
	require.Error(t, err)
	require.ErrorAs(t, err, &fracErr)
}

// TestAllocate_S6 exercises the worked example from spec §8 scenario S6.
func TestAllocate_S6(t *testing.T) {
	doc := &Document{
		Deployment: []Entry{
			{ID: "compute", Config: desiredstate.GroupConfig{Count: 10, Flavor: "m1.small"}},
			{ID: "training-a", Config: desiredstate.GroupConfig{Count: 3, Flavor: "m1.small"}},
		},
	}

	out, err := Allocate(doc, 0.3)
	require.NoError(t, err)

	compute, ok := entryByID(out, "compute")
	require.True(t, ok)
	assert.Equal(t, 7, compute.Config.Count)

	secondary, ok := entryByID(out, "compute-htcondor-secondary")
	require.True(t, ok)
	assert.Equal(t, 3, secondary.Config.Count)
	assert.Equal(t, "htcondor-secondary", secondary.Config.Image)
	assert.True(t, secondary.Config.SecondaryHTCondorCluster)

	trainingA, ok := entryByID(out, "training-a")
	require.True(t, ok)
	assert.Equal(t, 3, trainingA.Config.Count)

	// secondary training group drops entirely: 3 - ceil(3*0.7)=0.
	_, ok = entryByID(out, "training-a-htcondor-secondary")
	assert.False(t, ok)
}

// TestAllocate_TrainingConservation is property 5 from spec §8: for every
// training group, primary + secondary always equals the original count,
// across the full range of fractions.
func TestAllocate_TrainingConservation(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 7, 10, 13} {
		for _, fraction := range []float64{0, 0.1, 0.3, 0.5, 0.7, 0.9, 1} {
			doc := &Document{Deployment: []Entry{
				{ID: "training-x", Config: desiredstate.GroupConfig{Count: n, Flavor: "m1.small"}},
			}}
			out, err := Allocate(doc, fraction)
			require.NoError(t, err)

			total := 0
			if primary, ok := entryByID(out, "training-x"); ok {
				total += primary.Config.Count
			}
			if secondary, ok := entryByID(out, "training-x-htcondor-secondary"); ok {
				total += secondary.Config.Count
			}
			assert.Equal(t, n, total, "fraction=%v n=%d", fraction, n)
		}
	}
}

// TestAllocate_RoundTrip is property 7 from spec §8: fraction=0 leaves every
// group's identity and count unchanged and emits no secondary groups.
func TestAllocate_RoundTrip(t *testing.T) {
	doc := &Document{Deployment: []Entry{
		{ID: "compute", Config: desiredstate.GroupConfig{Count: 10, Flavor: "m1.small"}},
		{ID: "training-a", Config: desiredstate.GroupConfig{Count: 3, Flavor: "m1.small"}},
	}}

	out, err := Allocate(doc, 0)
	require.NoError(t, err)
	require.Len(t, out.Deployment, 2)

	compute, ok := entryByID(out, "compute")
	require.True(t, ok)
	assert.Equal(t, 10, compute.Config.Count)

	trainingA, ok := entryByID(out, "training-a")
	require.True(t, ok)
	assert.Equal(t, 3, trainingA.Config.Count)
}

func TestAllocate_KeyOrder_UploadInteractiveOtherTraining(t *testing.T) {
	doc := &Document{Deployment: []Entry{
		{ID: "compute", Config: desiredstate.GroupConfig{Count: 4, Flavor: "m1.small"}},
		{ID: "training-a", Config: desiredstate.GroupConfig{Count: 4, Flavor: "m1.small"}},
		{ID: "web", Config: desiredstate.GroupConfig{Count: 4, Flavor: "m1.small", Group: "interactive"}},
		{ID: "ingest", Config: desiredstate.GroupConfig{Count: 4, Flavor: "m1.small", Group: "upload"}},
	}}

	out, err := Allocate(doc, 0.5)
	require.NoError(t, err)

	var order []string
	for _, e := range out.Deployment {
		order = append(order, e.ID)
	}

	uploadIdx := indexOf(order, "ingest")
	interactiveIdx := indexOf(order, "web")
	computeIdx := indexOf(order, "compute")
	trainingIdx := indexOf(order, "training-a")

	assert.Less(t, uploadIdx, interactiveIdx)
	assert.Less(t, interactiveIdx, computeIdx)
	assert.Less(t, computeIdx, trainingIdx)
}

func indexOf(s []string, v string) int {
	for i, e := range s {
		if e == v {
			return i
		}
	}
	return -1
}

func TestAllocate_UnmappedImageAliasFails(t *testing.T) {
	doc := &Document{Deployment: []Entry{
		{ID: "compute", Config: desiredstate.GroupConfig{Count: 4, Flavor: "m1.small", Image: "exotic"}},
	}}

	_, err := Allocate(doc, 0.5)
	require.Error(t, err)
}

func TestParseRender_RoundTripsOrderAndFields(t *testing.T) {
	input := []byte(`
images:
  default: ubuntu-22.04
nodes_inventory:
  m1.small: 10
network: vgcn-net
sshkey: my-key
graceful: true
deployment:
  ingest:
    count: 2
    flavor: m1.small
    group: upload
  compute:
    count: 4
    flavor: m1.small
`)

	doc, err := ParseDocument(input)
	require.NoError(t, err)
	require.Len(t, doc.Deployment, 2)
	assert.Equal(t, "ingest", doc.Deployment[0].ID)
	assert.Equal(t, "compute", doc.Deployment[1].ID)
	assert.Equal(t, "vgcn-net", doc.Network)
	assert.True(t, doc.Graceful)

	out, err := Render(doc)
	require.NoError(t, err)

	reparsed, err := ParseDocument(out)
	require.NoError(t, err)
	require.Len(t, reparsed.Deployment, 2)
	assert.Equal(t, "ingest", reparsed.Deployment[0].ID)
	assert.Equal(t, "compute", reparsed.Deployment[1].ID)
	assert.Equal(t, doc.Network, reparsed.Network)
}

func TestRender_Determinism(t *testing.T) {
	doc := &Document{
		Images:         map[string]string{"default": "ubuntu-22.04"},
		NodesInventory: map[string]int{"m1.small": 10},
		Network:        "vgcn-net",
		Deployment: []Entry{
			{ID: "compute", Config: desiredstate.GroupConfig{Count: 10, Flavor: "m1.small"}},
			{ID: "training-a", Config: desiredstate.GroupConfig{Count: 3, Flavor: "m1.small"}},
		},
	}

	allocated, err := Allocate(doc, 0.3)
	require.NoError(t, err)

	first, err := Render(allocated)
	require.NoError(t, err)
	second, err := Render(allocated)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
