// Package condor drives the HTCondor batch scheduler daemon on a fleet
// member over an already-established SSH session: draining it out of the
// pool, polling until it goes idle, and finally shutting the daemon down.
// Grounded one-to-one on synchronize.py's condor_drain/condor_active/
// condor_off/condor_graceful_shutdown (spec §4.4).
package condor

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/log"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/metrics"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

// Runner is the subset of sshrunner.Session this package depends on,
// abstracted so tests can drive it with a scripted fake instead of a real
// SSH session.
type Runner interface {
	Run(ctx context.Context, command string) (stdout, stderr []byte, err error)
}

const (
	drainCommand = "condor_drain `hostname -f`"
	statusCommand = "condor_status | grep slot.*@`hostname -f`"
	offCommand    = "/usr/sbin/condor_off -graceful `hostname -f`"
)

// Drain issues condor_drain on the server identified by the session. Unlike
// most remote commands, a drain's "success" text can land on either stream
// and a non-zero exit is expected once the node is already draining, so
// this ignores Run's RemoteCommandError and inspects combined output
// itself, the way condor_drain in synchronize.py does.
func Drain(ctx context.Context, r Runner) error {
	stdout, stderr, err := r.Run(ctx, drainCommand)
	if err != nil {
		var cmdErr *vgcnerr.RemoteCommandError
		if errors.As(err, &cmdErr) {
			stdout, stderr = cmdErr.Stdout, cmdErr.Stderr
		} else {
			return err
		}
	}

	switch {
	case bytes.Contains(stdout, []byte("Sent request to drain")):
	case bytes.Contains(stderr, []byte("Draining already in progress")):
	case bytes.Contains(stderr, []byte("Can't find address")):
	default:
		return &vgcnerr.UnexpectedCondorOutput{Command: drainCommand, Stdout: stdout, Stderr: stderr}
	}
	return nil
}

// Active reports whether HTCondor still advertises any slot for this host.
// Mirrors synchronize.py's condor_active: parse each non-empty output line,
// extract the 5th whitespace-delimited field (the activity column,
// discarding lines with fewer fields the way the Python original's
// IndexError fallback does), and report active iff more than one such
// field was collected.
func Active(ctx context.Context, r Runner) bool {
	stdout, _, err := r.Run(ctx, statusCommand)
	if err != nil {
		var cmdErr *vgcnerr.RemoteCommandError
		if errors.As(err, &cmdErr) {
			stdout = cmdErr.Stdout
		} else {
			return false
		}
	}

	var activities []string
	for _, line := range bytes.Split(bytes.TrimSpace(stdout), []byte("\n")) {
		fields := bytes.Fields(line)
		if len(fields) < 5 {
			continue
		}
		activities = append(activities, string(fields[4]))
	}
	return len(activities) > 1
}

// Off runs condor_off -graceful, removing the daemon from the pool
// promptly once it has finished draining.
func Off(ctx context.Context, r Runner) error {
	_, _, err := r.Run(ctx, offCommand)
	return err
}

// GracefulShutdown repeatedly drains and polls until the node goes idle or
// timeout elapses. Off is called only when the node went idle in time; if
// the loop exits because the timeout was reached while still active, it
// returns *vgcnerr.CondorShutdownTimeout without calling Off — matching
// synchronize.py's condor_graceful_shutdown, which raises
// CondorShutdownException on timeout without ever reaching its condor_off()
// call.
func GracefulShutdown(ctx context.Context, r Runner, server string, timeout, interval time.Duration) error {
	logger := log.WithComponent("condor")
	active := true
	start := time.Now()

	for active && time.Since(start) < timeout {
		iterStart := time.Now()
		if err := Drain(ctx, r); err != nil {
			return err
		}
		active = Active(ctx, r)
		logger.Debug().Str("server", server).Bool("active", active).Msg("condor drain poll")

		elapsed := time.Since(iterStart)
		if sleep := interval - elapsed; sleep > 0 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if active {
		metrics.CondorDrainTimeoutsTotal.Inc()
		return &vgcnerr.CondorShutdownTimeout{Server: server, Elapsed: time.Since(start).Seconds()}
	}

	return Off(ctx, r)
}
