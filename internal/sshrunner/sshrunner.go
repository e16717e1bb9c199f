// Package sshrunner dials a fleet member over SSH and runs condor/shell
// commands on it, draining stdout/stderr concurrently so a chatty remote
// command can never deadlock the pipe. Grounded on the teacher's
// internal/platform/ssh.Client (dial-with-retry, signer-based auth) and on
// synchronize.py's remote_command/print_streams, which this package
// reproduces almost one-to-one in Go idiom.
package sshrunner

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/log"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/metrics"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

const (
	// Username is the fixed login for every fleet member (spec §4.3).
	Username = "centos"
	// Port is the fixed SSH port for every fleet member.
	Port = 22

	defaultDialTimeout = 10 * time.Second
)

// TrustedHostKeyCallback returns a ssh.HostKeyCallback that accepts a host
// key only if the base64 encoding of its marshaled form appears in pubkeys
// (the key text of an authorized_keys line, without type or comment). This mirrors
// ensure_enough.py's VgcnPolicy, which refuses any host key absent from the
// cloud-wide pubkeys list instead of trusting-on-first-use. An empty
// pubkeys list rejects every host, matching the Python original's KeyError
// failure mode on a missing "pubkeys" config key.
func TrustedHostKeyCallback(pubkeys []string) ssh.HostKeyCallback {
	trusted := make(map[string]bool, len(pubkeys))
	for _, k := range pubkeys {
		trusted[k] = true
	}
	return hostKeyCallback(trusted)
}

func hostKeyCallback(trusted map[string]bool) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if trusted[base64.StdEncoding.EncodeToString(key.Marshal())] {
			return nil
		}
		encoded := ssh.MarshalAuthorizedKey(key)
		return fmt.Errorf("host key for %s is not in the trusted pubkeys list: %s", hostname, encoded)
	}
}

// Config configures a Client.
type Config struct {
	Signer      ssh.Signer
	PubKeys     []string // trusted host public keys, base64 marshaled form
	DialTimeout time.Duration
	// Port overrides Port for tests that cannot bind the real SSH port.
	// Zero means Port.
	Port int
}

// Client dials fleet members over SSH, trying every address a server
// advertises in stable order until one accepts the handshake, per spec §4.3
// and synchronize.py's get_ssh_access_address.
type Client struct {
	signer      ssh.Signer
	hostKeyFunc ssh.HostKeyCallback
	dialTimeout time.Duration
	port        int
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	port := cfg.Port
	if port == 0 {
		port = Port
	}
	return &Client{
		signer:      cfg.Signer,
		hostKeyFunc: TrustedHostKeyCallback(cfg.PubKeys),
		dialTimeout: timeout,
		port:        port,
	}
}

// Session is a live SSH connection to one fleet member, scoped to the
// lifetime of a single graceful-termination attempt.
type Session struct {
	conn *ssh.Client
}

// Connect tries every address in addrs, in order, returning the first
// Session to accept the handshake. Returns *vgcnerr.NoSSHAccess if none do.
func (c *Client) Connect(ctx context.Context, serverName string, addrs []string) (*Session, error) {
	config := &ssh.ClientConfig{
		User:            Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.hostKeyFunc,
		Timeout:         c.dialTimeout,
	}

	logger := log.WithComponent("sshrunner")
	for _, addr := range addrs {
		target := fmt.Sprintf("%s:%d", addr, c.port)
		dialer := net.Dialer{Timeout: c.dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			logger.Warn().Str("address", addr).Err(err).Msg("ssh dial failed")
			continue
		}
		clientConn, chans, reqs, err := ssh.NewClientConn(conn, target, config)
		if err != nil {
			_ = conn.Close()
			logger.Warn().Str("address", addr).Err(err).Msg("ssh handshake failed")
			continue
		}
		return &Session{conn: ssh.NewClient(clientConn, chans, reqs)}, nil
	}

	return nil, &vgcnerr.NoSSHAccess{Server: serverName}
}

// Close closes the underlying SSH connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Run executes command on the session, draining stdout and stderr
// concurrently (grounded on synchronize.py's print_streams, which uses a
// thread pool for the same reason: a session's stderr pipe fills up and
// blocks the remote process if nothing is reading it while stdout is
// buffered synchronously). Returns a *vgcnerr.RemoteCommandError if the
// command exits non-zero.
func (s *Session) Run(ctx context.Context, command string) (stdout, stderr []byte, err error) {
	session, err := s.conn.NewSession()
	if err != nil {
		return nil, nil, fmt.Errorf("opening ssh session: %w", err)
	}
	defer session.Close()

	stdoutPipe, err := session.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("attaching stdout: %w", err)
	}
	stderrPipe, err := session.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("attaching stderr: %w", err)
	}

	if err := session.Start(command); err != nil {
		return nil, nil, fmt.Errorf("starting command %q: %w", command, err)
	}

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go drain(&wg, stdoutPipe, &outBuf)
	go drain(&wg, stderrPipe, &errBuf)
	wg.Wait()

	waitErr := session.Wait()
	stdout, stderr = outBuf.Bytes(), errBuf.Bytes()

	if waitErr != nil {
		metrics.SSHCommandsTotal.WithLabelValues("error").Inc()
		exitCode := -1
		var exitErr *ssh.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitStatus()
		}
		return stdout, stderr, &vgcnerr.RemoteCommandError{
			Command:  command,
			Stdout:   stdout,
			Stderr:   stderr,
			ExitCode: exitCode,
		}
	}

	metrics.SSHCommandsTotal.WithLabelValues("success").Inc()
	return stdout, stderr, nil
}

func drain(wg *sync.WaitGroup, r io.Reader, buf *bytes.Buffer) {
	defer wg.Done()
	_, _ = io.Copy(buf, r)
}
