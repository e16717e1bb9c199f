// Package vgcnerr collects the typed error taxonomy raised across the
// reconciler. Callers distinguish failure classes with errors.As rather than
// string matching, so the Reconciler can decide things like "fall back to
// brutal termination" without parsing messages.
package vgcnerr

import "fmt"

// ConflictRecord describes a single capacity conflict found by the
// validator: a flavor that would be over-committed on a given day.
type ConflictRecord struct {
	Flavor      string
	Date        string // empty for an undated conflict
	Requested   int
	Limit       int
	GroupIDs    []string
}

// ConflictError is raised when a DesiredState would over-commit inventory.
type ConflictError struct {
	Conflicts []ConflictRecord
}

func (e *ConflictError) Error() string {
	msg := "capacity conflicts found:"
	for _, c := range e.Conflicts {
		date := c.Date
		if date == "" {
			date = "(undated)"
		}
		msg += fmt.Sprintf(
			"\n  - %s on %s: requested %d, limit %d, groups: %v",
			c.Flavor, date, c.Requested, c.Limit, c.GroupIDs,
		)
	}
	return msg
}

// RemoteCommandError is raised when a command run over SSH exits non-zero.
type RemoteCommandError struct {
	Command  string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

func (e *RemoteCommandError) Error() string {
	return fmt.Sprintf(
		"command %q exited with code %d\nstdout: %s\nstderr: %s",
		e.Command, e.ExitCode, e.Stdout, e.Stderr,
	)
}

// UnexpectedCondorOutput is raised when a condor_* command produces output
// outside the set of recognized patterns.
type UnexpectedCondorOutput struct {
	Command string
	Stdout  []byte
	Stderr  []byte
}

func (e *UnexpectedCondorOutput) Error() string {
	return fmt.Sprintf(
		"unexpected output from %q\nstdout: %s\nstderr: %s",
		e.Command, e.Stdout, e.Stderr,
	)
}

// CondorShutdownTimeout is raised when condor_graceful_shutdown's drain loop
// exceeds its wall-clock budget while the node is still active.
type CondorShutdownTimeout struct {
	Server  string
	Elapsed float64 // seconds
}

func (e *CondorShutdownTimeout) Error() string {
	return fmt.Sprintf(
		"could not gracefully stop HTCondor on %s after %.0f seconds",
		e.Server, e.Elapsed,
	)
}

// NoSSHAccess is raised when no address on a server accepted an SSH
// handshake.
type NoSSHAccess struct {
	Server string
}

func (e *NoSSHAccess) Error() string {
	return fmt.Sprintf("unable to gain ssh access to %s", e.Server)
}

// StateWaitTimeout is raised when a server did not reach any of the target
// states within the allotted time.
type StateWaitTimeout struct {
	Server        string
	TargetStates  []string
	TimeoutSecond float64
}

func (e *StateWaitTimeout) Error() string {
	return fmt.Sprintf(
		"server %s did not reach any of the target states (%v) within %.0f seconds",
		e.Server, e.TargetStates, e.TimeoutSecond,
	)
}

// DeleteTimeout is raised when a server was not observed to disappear from
// the cloud's server listing within the allotted time.
type DeleteTimeout struct {
	Server        string
	TimeoutSecond float64
}

func (e *DeleteTimeout) Error() string {
	return fmt.Sprintf(
		"timed out after %.0f seconds waiting for %s to be deleted",
		e.TimeoutSecond, e.Server,
	)
}

// NamesExhausted is raised when unique_name cannot find any free slot.
type NamesExhausted struct {
	Prefix string
}

func (e *NamesExhausted) Error() string {
	return fmt.Sprintf(
		"cannot generate a unique name: all names between %s-0000 and %s-9999 are in use",
		e.Prefix, e.Prefix,
	)
}

// ServerBootError is raised when a newly created server reaches ERROR
// status instead of ACTIVE. The server has already been terminated by the
// time this is returned; it exists so the caller counts the attempt as a
// failure rather than silently treating the cleanup as success.
type ServerBootError struct {
	Server string
	Fault  string
}

func (e *ServerBootError) Error() string {
	return fmt.Sprintf("server %s entered ERROR state: %s", e.Server, e.Fault)
}

// CloudAPIError wraps an underlying error returned by the cloud.Client.
type CloudAPIError struct {
	Operation string
	Err       error
}

func (e *CloudAPIError) Error() string {
	return fmt.Sprintf("cloud API error during %s: %v", e.Operation, e.Err)
}

func (e *CloudAPIError) Unwrap() error {
	return e.Err
}
