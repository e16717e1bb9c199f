package terminate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/cloud"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/cloud/fake"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

// fakeSession scripts Run responses for one simulated SSH session, draining
// condor in a single iteration (drain -> inactive -> off).
type fakeSession struct {
	responses []response
	calls     int
	closed    bool
}

type response struct {
	stdout, stderr []byte
	err            error
}

func (s *fakeSession) Run(ctx context.Context, command string) ([]byte, []byte, error) {
	r := s.responses[s.calls]
	s.calls++
	return r.stdout, r.stderr, r.err
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDialer struct {
	session *fakeSession
	err     error
}

func (d *fakeDialer) Connect(ctx context.Context, serverName string, addrs []string) (sshSession, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

func idleCondorSession() *fakeSession {
	return &fakeSession{responses: []response{
		{stdout: []byte("Sent request to drain all jobs.\n")}, // drain
		{stdout: []byte("")},                                  // status: idle immediately
		{stdout: []byte("")},                                  // condor_off
	}}
}

func TestGracefullyTerminate_ActiveServer(t *testing.T) {
	c := fake.New()
	srv := cloud.Server{ID: "id-1", Name: "vgcnbwc-compute-0000", Status: cloud.StatusActive,
		Addresses: map[string][]string{"default": {"10.0.0.5"}}}
	c.Seed(srv)

	sess := idleCondorSession()
	term := &Terminator{
		Cloud:    c,
		SSH:      &fakeDialer{session: sess},
		Timeout:  time.Minute,
		Interval: time.Millisecond,
	}

	require.NoError(t, term.GracefullyTerminate(context.Background(), srv))
	assert.True(t, sess.closed)

	found, err := c.FindServer(context.Background(), srv.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestGracefullyTerminate_NonActiveServerSkipsSSH(t *testing.T) {
	c := fake.New()
	srv := cloud.Server{ID: "id-2", Name: "vgcnbwc-compute-0001", Status: cloud.StatusBuild}
	c.Seed(srv)

	term := &Terminator{
		Cloud: c,
		SSH:   &fakeDialer{err: assertNeverCalled{}},
	}

	require.NoError(t, term.GracefullyTerminate(context.Background(), srv))
}

func TestGracefullyTerminate_ActiveButOffConfiguredNetworkSkipsSSH(t *testing.T) {
	c := fake.New()
	srv := cloud.Server{ID: "id-2b", Name: "vgcnbwc-compute-0005", Status: cloud.StatusActive,
		Addresses: map[string][]string{"some-other-network": {"10.0.0.9"}}}
	c.Seed(srv)

	term := &Terminator{
		Cloud:   c,
		SSH:     &fakeDialer{err: assertNeverCalled{}},
		Network: "default",
	}

	require.NoError(t, term.GracefullyTerminate(context.Background(), srv))

	found, err := c.FindServer(context.Background(), srv.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

type assertNeverCalled struct{}

func (assertNeverCalled) Error() string { return "SSH.Connect should not have been called" }

func TestGracefullyTerminate_NoSSHAccessStillDeletes(t *testing.T) {
	c := fake.New()
	srv := cloud.Server{ID: "id-3", Name: "vgcnbwc-compute-0002", Status: cloud.StatusActive}
	c.Seed(srv)

	term := &Terminator{
		Cloud: c,
		SSH:   &fakeDialer{err: &vgcnerr.NoSSHAccess{Server: srv.Name}},
	}

	err := term.GracefullyTerminate(context.Background(), srv)
	require.Error(t, err)
	var noAccess *vgcnerr.NoSSHAccess
	assert.ErrorAs(t, err, &noAccess)

	found, findErr := c.FindServer(context.Background(), srv.ID)
	require.NoError(t, findErr)
	assert.Nil(t, found, "server should still be deleted despite the SSH failure")
}

func TestBrutallyTerminate(t *testing.T) {
	c := fake.New()
	srv := cloud.Server{ID: "id-4", Name: "vgcnbwc-compute-0003", Status: cloud.StatusError}
	c.Seed(srv)

	term := &Terminator{Cloud: c}
	require.NoError(t, term.BrutallyTerminate(context.Background(), srv))

	found, err := c.FindServer(context.Background(), srv.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestDeleteAndWait_Timeout(t *testing.T) {
	c := fake.New()
	srv := cloud.Server{ID: "id-5", Name: "vgcnbwc-compute-0004", Status: cloud.StatusActive}
	c.Seed(srv)
	c.DeleteErr = nil

	// Re-seed after delete so FindServer never reports it gone, forcing timeout.
	term := &Terminator{Cloud: stickyDeleteCloud{c, srv}, DeleteTimeout: 20 * time.Millisecond, DeleteInterval: 5 * time.Millisecond}

	err := term.DeleteAndWait(context.Background(), srv)
	require.Error(t, err)
	var timeoutErr *vgcnerr.DeleteTimeout
	assert.ErrorAs(t, err, &timeoutErr)
}

// stickyDeleteCloud wraps a fake.Client whose DeleteServer succeeds but
// whose server never disappears from FindServer, to exercise the
// delete_and_wait timeout path deterministically.
type stickyDeleteCloud struct {
	*fake.Client
	server cloud.Server
}

func (s stickyDeleteCloud) DeleteServer(ctx context.Context, id string) error {
	return nil
}

func (s stickyDeleteCloud) FindServer(ctx context.Context, id string) (*cloud.Server, error) {
	cp := s.server
	return &cp, nil
}
