// Package handlers implements the business logic for the vgcn-reconcile CLI.
//
// Handlers are framework-agnostic and are exercised directly in tests,
// independent of the cobra command tree in the sibling commands package.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/crypto/ssh"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/cloud"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/log"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/reconciler"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/sshrunner"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/terminate"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/userdata"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

// Exit codes, spec §6.
const (
	ExitSuccess          = 0
	ExitCapacityConflict = 1
	ExitPartialFailure   = 2
	ExitConfigError      = 3
)

// sshPrivateKeyEnv names the environment variable holding the path to the
// SSH private key used to reach fleet members as Username (sshrunner.go).
// Falls back to the operator's default key when unset.
const sshPrivateKeyEnv = "VGCN_SSH_PRIVATE_KEY_FILE"

// ReconcileOptions bundles the CLI's flags plus the injectable external
// collaborators (spec §1): the OpenStack client and the user-data renderer
// are interfaces this repo defines but does not implement, so a caller that
// has one on hand (a real gophercloud-backed cloud.Client, for instance)
// injects it here. CLI invocations with neither get CloudClient built from
// NewCloudClient and UserData built as a StaticRenderer over UserDataFile.
type ReconcileOptions struct {
	ResourcesFile string
	UserDataFile  string
	CloudName     string
	DryRun        bool

	CloudClient cloud.Client
	UserData    userdata.Renderer
}

// NewCloudClient resolves CloudName to a concrete cloud.Client. The real
// OpenStack backend is an external collaborator out of scope for this
// module (spec §1); the default here always fails so that running this
// binary without wiring one in produces a clear configuration error
// (ExitConfigError) instead of a nil-pointer panic. An operator linking a
// real backend in overrides this var (or populates ReconcileOptions.CloudClient
// directly, which skips this call entirely).
var NewCloudClient = func(cloudName string) (cloud.Client, error) {
	return nil, fmt.Errorf("no OpenStack backend is linked into this binary for cloud %q; "+
		"set handlers.NewCloudClient or pass ReconcileOptions.CloudClient", cloudName)
}

// Reconcile loads the desired state, wires the cloud client, SSH runner,
// and terminator, and runs one reconciliation pass. The returned error, if
// any, should be passed to ExitCode to determine the process exit status.
func Reconcile(ctx context.Context, opts ReconcileOptions) error {
	ds, err := desiredstate.Load(opts.ResourcesFile)
	if err != nil {
		return &configError{fmt.Errorf("loading %s: %w", opts.ResourcesFile, err)}
	}

	cloudClient := opts.CloudClient
	if cloudClient == nil {
		cloudClient, err = NewCloudClient(opts.CloudName)
		if err != nil {
			return &configError{err}
		}
	}

	renderer := opts.UserData
	if renderer == nil && opts.UserDataFile != "" {
		renderer, err = userdata.LoadStaticRenderer(opts.UserDataFile)
		if err != nil {
			return &configError{fmt.Errorf("loading %s: %w", opts.UserDataFile, err)}
		}
	}

	// A dry run never opens an SSH connection, so a missing/unreadable key
	// should not block it from reporting its plan.
	var signer ssh.Signer
	if !opts.DryRun {
		signer, err = loadSigner()
		if err != nil {
			return &configError{fmt.Errorf("loading ssh private key: %w", err)}
		}
	}
	sshClient := sshrunner.New(sshrunner.Config{Signer: signer, PubKeys: ds.PubKeys})

	term := &terminate.Terminator{
		Cloud: cloudClient,
		SSH:   terminate.DialerFromClient(sshClient),
	}

	rec := &reconciler.Reconciler{
		Cloud:      cloudClient,
		Terminator: term,
		UserData:   renderer,
	}

	logger := log.WithComponent("vgcn-reconcile")
	if opts.DryRun {
		logger.Info().Str("resources", opts.ResourcesFile).Msg("starting dry-run reconciliation")
	} else {
		logger.Info().Str("resources", opts.ResourcesFile).Msg("starting reconciliation")
	}

	return rec.Reconcile(ctx, ds, opts.DryRun)
}

// ExitCode maps a Reconcile error to the process exit code spec §6 defines.
// A nil error is success (0), which also covers a dry-run with a pending
// plan per spec §6's explicit note.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Failures from the per-group apply loop arrive aggregated by
	// go-multierror in Reconciler.Reconcile: at least one action failed but
	// the run otherwise completed. Checked first so that a wrapped
	// CloudAPIError from a failed create/delete still counts as partial.
	var applyErr *multierror.Error
	if errors.As(err, &applyErr) {
		return ExitPartialFailure
	}

	var conflictErr *vgcnerr.ConflictError
	if errors.As(err, &conflictErr) {
		return ExitCapacityConflict
	}

	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}
	var validationErr *desiredstate.ValidationError
	if errors.As(err, &validationErr) {
		return ExitConfigError
	}
	var cloudErr *vgcnerr.CloudAPIError
	if errors.As(err, &cloudErr) {
		return ExitConfigError
	}

	return ExitPartialFailure
}

// configError marks a failure to load configuration or build a collaborator
// before reconciliation starts; ExitCode maps it to ExitConfigError.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// loadSigner parses the SSH private key named by sshPrivateKeyEnv (default
// ~/.ssh/id_rsa) used to authenticate as sshrunner.Username on fleet
// members.
func loadSigner() (ssh.Signer, error) {
	path := os.Getenv(sshPrivateKeyEnv)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving default ssh key path: %w", err)
		}
		path = filepath.Join(home, ".ssh", "id_rsa")
	}

	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ssh.ParsePrivateKey(key)
}
