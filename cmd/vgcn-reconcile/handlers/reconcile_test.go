package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/cloud"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/cloud/fake"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

const validResources = `
images:
  default: img-default
nodes_inventory:
  m1.small: 5
network: vgcn-net
sshkey: vgcn-key
graceful: false
deployment:
  compute:
    flavor: m1.small
    count: 3
`

func writeResources(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReconcile_DryRun_UsesInjectedCloudClient(t *testing.T) {
	c := fake.New()
	c.Images["img-default"] = "image-id"
	c.Networks["vgcn-net"] = "net-id"
	c.Flavors["m1.small"] = "flavor-id"

	opts := ReconcileOptions{
		ResourcesFile: writeResources(t, validResources),
		DryRun:        true,
		CloudClient:   c,
	}

	err := Reconcile(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, ExitCode(err))
}

func TestReconcile_MissingResourcesFile_IsConfigError(t *testing.T) {
	opts := ReconcileOptions{
		ResourcesFile: filepath.Join(t.TempDir(), "does-not-exist.yaml"),
		CloudClient:   fake.New(),
	}

	err := Reconcile(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestReconcile_NoCloudClientInjected_ReturnsConfigError(t *testing.T) {
	opts := ReconcileOptions{
		ResourcesFile: writeResources(t, validResources),
		DryRun:        true,
	}

	err := Reconcile(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestExitCode_CapacityConflict(t *testing.T) {
	err := &vgcnerr.ConflictError{Conflicts: []vgcnerr.ConflictRecord{{Flavor: "m1.small"}}}
	assert.Equal(t, ExitCapacityConflict, ExitCode(err))
}

func TestExitCode_ValidationError(t *testing.T) {
	err := &desiredstate.ValidationError{Problems: []string{"bad"}}
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestExitCode_CloudAPIError(t *testing.T) {
	err := &vgcnerr.CloudAPIError{Operation: "list_servers", Err: errors.New("boom")}
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestExitCode_UnrecognizedError_IsPartialFailure(t *testing.T) {
	assert.Equal(t, ExitPartialFailure, ExitCode(errors.New("group compute: create: boom")))
}

func TestExitCode_Nil_IsSuccess(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
}

var _ cloud.Client = (*fake.Client)(nil)
