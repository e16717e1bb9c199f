// Package terminate removes a fleet member from the cloud, either after a
// graceful HTCondor drain or immediately ("brutal"), and waits for the
// cloud to confirm deletion. Grounded on synchronize.py's
// gracefully_terminate/delete_and_wait/wait_for_state and on ensure_enough.py's
// brutally_terminate (spec §4.5).
package terminate

import (
	"context"
	"time"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/cloud"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/condor"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/log"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/metrics"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/sshrunner"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

const (
	defaultDeleteTimeout  = 60 * time.Second
	defaultDeleteInterval = 2 * time.Second
)

// sshSession is the subset of *sshrunner.Session this package needs,
// narrowed to an interface so tests can substitute a fake that never opens
// a real socket.
type sshSession interface {
	condor.Runner
	Close() error
}

// SSHDialer is the subset of sshrunner.Client this package depends on.
type SSHDialer interface {
	Connect(ctx context.Context, serverName string, addrs []string) (sshSession, error)
}

// DialerFromClient adapts a *sshrunner.Client (whose Connect method returns
// the concrete *sshrunner.Session) to SSHDialer.
func DialerFromClient(c *sshrunner.Client) SSHDialer {
	return sshClientDialer{c}
}

type sshClientDialer struct {
	client *sshrunner.Client
}

func (d sshClientDialer) Connect(ctx context.Context, serverName string, addrs []string) (sshSession, error) {
	return d.client.Connect(ctx, serverName, addrs)
}

// Terminator removes servers from the cloud, gracefully or brutally.
type Terminator struct {
	Cloud    cloud.Client
	SSH      SSHDialer
	Timeout  time.Duration // condor graceful-shutdown budget, spec §4.5
	Interval time.Duration // condor poll interval, spec §4.4

	// DeleteTimeout/DeleteInterval override the delete_and_wait polling
	// budget; zero means the spec §4.5 defaults (60s/2s).
	DeleteTimeout  time.Duration
	DeleteInterval time.Duration

	// Network is the DesiredState's configured network name. When set, a
	// server whose Addresses do not include it is brutally terminated
	// instead of SSH'd into, since get_ssh_access_address would be
	// pointless or misleading for a server outside the fleet's network
	// (ensure_enough.py's network-membership sanity check before
	// termination). Left empty, the check is skipped.
	Network string
}

// GracefullyTerminate drains HTCondor on server (if it is ACTIVE) before
// removing it, per spec §4.5 step 1-2: regardless of whether the Condor
// shutdown succeeded or hit its timeout, delete_and_wait is always called
// afterwards. Returns the delete error if deletion fails (the condor/ssh
// error is then only logged); otherwise returns the condor/ssh error, if
// any, so the caller can decide whether to fall back to BrutallyTerminate —
// it does NOT fall back itself, matching
// ensure_enough.py's remove_server, whose caller is responsible for that
// decision.
func (t *Terminator) GracefullyTerminate(ctx context.Context, server cloud.Server) error {
	logger := log.WithComponent("terminate")
	logger.Debug().Str("server", server.Name).Msg("gracefully terminating")

	var condorErr error
	if server.Status == cloud.StatusActive && t.onConfiguredNetwork(server) {
		condorErr = t.shutdownCondor(ctx, server)
		if condorErr != nil {
			logger.Warn().Str("server", server.Name).Err(condorErr).Msg("condor shutdown did not complete cleanly")
		}
	} else if server.Status == cloud.StatusActive {
		logger.Warn().Str("server", server.Name).Str("network", t.Network).Msg("server not reachable on configured network, skipping graceful drain")
	}

	if err := t.DeleteAndWait(ctx, server); err != nil {
		return err
	}
	return condorErr
}

// onConfiguredNetwork reports whether server advertises an address on t's
// configured network. ensure_enough.py runs this check before attempting SSH
// at all: a server with no address on the fleet's network is not something
// get_ssh_access_address can reach, so it is brutally terminated instead. An
// unset Network skips the check (reachability is assumed).
func (t *Terminator) onConfiguredNetwork(server cloud.Server) bool {
	if t.Network == "" {
		return true
	}
	return len(server.Addresses[t.Network]) > 0
}

func (t *Terminator) shutdownCondor(ctx context.Context, server cloud.Server) error {
	var addrs []string
	for _, ips := range server.Addresses {
		addrs = append(addrs, ips...)
	}

	sess, err := t.SSH.Connect(ctx, server.Name, addrs)
	if err != nil {
		return err
	}
	defer sess.Close()

	return condor.GracefulShutdown(ctx, sess, server.Name, t.Timeout, t.Interval)
}

// BrutallyTerminate removes server with no SSH interaction, used when
// config.graceful is false, the server is already ERROR, or SSH is
// unreachable (spec §4.5).
func (t *Terminator) BrutallyTerminate(ctx context.Context, server cloud.Server) error {
	log.WithComponent("terminate").Debug().Str("server", server.Name).Msg("brutally terminating")
	return t.DeleteAndWait(ctx, server)
}

// DeleteAndWait issues delete_server then polls find_server until it
// reports the server gone or timeout elapses (spec §4.5).
func (t *Terminator) DeleteAndWait(ctx context.Context, server cloud.Server) error {
	timeout, interval := t.DeleteTimeout, t.DeleteInterval
	if timeout == 0 {
		timeout = defaultDeleteTimeout
	}
	if interval == 0 {
		interval = defaultDeleteInterval
	}

	deleteTimer := metrics.NewTimer()
	deleteErr := t.Cloud.DeleteServer(ctx, server.ID)
	deleteResult := "success"
	if deleteErr != nil {
		deleteResult = "error"
	}
	metrics.CloudAPIRequestsTotal.WithLabelValues("delete_server", deleteResult).Inc()
	deleteTimer.ObserveDurationVec(metrics.CloudAPIDuration, "delete_server")
	if deleteErr != nil {
		return &vgcnerr.CloudAPIError{Operation: "delete_server", Err: deleteErr}
	}

	start := time.Now()
	for {
		iterStart := time.Now()
		found, err := t.Cloud.FindServer(ctx, server.ID)
		if err != nil {
			return &vgcnerr.CloudAPIError{Operation: "find_server", Err: err}
		}
		if found == nil {
			return nil
		}
		if time.Since(start) >= timeout {
			return &vgcnerr.DeleteTimeout{Server: server.Name, TimeoutSecond: timeout.Seconds()}
		}

		elapsed := time.Since(iterStart)
		if sleep := interval - elapsed; sleep > 0 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// WaitForState polls find_server(id) until it reports one of targetStates
// (the empty string stands for "no longer listed"), or fails with
// *vgcnerr.StateWaitTimeout.
func WaitForState(ctx context.Context, c cloud.Client, server cloud.Server, targetStates []cloud.ServerStatus, timeout, interval time.Duration) (*cloud.Server, error) {
	targets := make(map[cloud.ServerStatus]bool, len(targetStates))
	for _, s := range targetStates {
		targets[s] = true
	}

	start := time.Now()
	for {
		iterStart := time.Now()
		found, err := c.FindServer(ctx, server.ID)
		if err != nil {
			return nil, &vgcnerr.CloudAPIError{Operation: "find_server", Err: err}
		}

		status := cloud.ServerStatus("")
		if found != nil {
			status = found.Status
		}
		if targets[status] {
			return found, nil
		}
		if time.Since(start) >= timeout {
			names := make([]string, 0, len(targetStates))
			for _, s := range targetStates {
				names = append(names, string(s))
			}
			return nil, &vgcnerr.StateWaitTimeout{Server: server.Name, TargetStates: names, TimeoutSecond: timeout.Seconds()}
		}

		elapsed := time.Since(iterStart)
		if sleep := interval - elapsed; sleep > 0 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}
