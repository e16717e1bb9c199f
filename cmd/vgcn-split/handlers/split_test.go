package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const splitResources = `
images:
  default: img-default
nodes_inventory:
  m1.small: 10
network: vgcn-net
sshkey: vgcn-key
graceful: true
deployment:
  compute:
    flavor: m1.small
    count: 10
`

func TestSplit_WritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	resources := filepath.Join(dir, "resources.yaml")
	require.NoError(t, os.WriteFile(resources, []byte(splitResources), 0o644))
	output := filepath.Join(dir, "split.yaml")

	opts := SplitOptions{ResourcesFile: resources, Fraction: 0.3, OutputFile: output}
	require.NoError(t, Split(opts))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "compute-htcondor-secondary")
}

func TestSplit_RejectsOutOfRangeFraction(t *testing.T) {
	dir := t.TempDir()
	resources := filepath.Join(dir, "resources.yaml")
	require.NoError(t, os.WriteFile(resources, []byte(splitResources), 0o644))

	opts := SplitOptions{ResourcesFile: resources, Fraction: 1.5}
	err := Split(opts)
	assert.Error(t, err)
}

func TestSplit_MissingResourcesFile(t *testing.T) {
	opts := SplitOptions{ResourcesFile: filepath.Join(t.TempDir(), "missing.yaml")}
	assert.Error(t, Split(opts))
}
