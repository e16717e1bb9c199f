// Package fake provides an in-memory cloud.Client, grounded on the
// teacher's pkg/cloud/fakes mutex-guarded map fakes. It backs every test in
// this module that needs to exercise the Reconciler, Planner, or
// Terminator without a real OpenStack endpoint.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/cloud"
)

// Client is an in-memory cloud.Client.
type Client struct {
	mu      sync.Mutex
	servers map[string]*cloud.Server
	nextID  int

	// Images/Flavors/Networks map a name to the ID FindX should resolve it
	// to. Entries are consulted only when the input isn't already a UUID
	// the caller resolved itself.
	Images   map[string]string
	Flavors  map[string]string
	Networks map[string]string

	// CreateErr/DeleteErr, if set, are returned by CreateServer/DeleteServer
	// instead of performing the operation, for failure-injection tests.
	CreateErr error
	DeleteErr error

	// CreateStatus overrides the status newly created servers are given;
	// defaults to cloud.StatusActive.
	CreateStatus cloud.ServerStatus

	// CreateCalls records every spec passed to CreateServer, in order, so
	// tests can assert on fields (e.g. UserDataBase64) this fake otherwise
	// ignores.
	CreateCalls []cloud.CreateServerSpec
}

// New returns an empty fake cloud.
func New() *Client {
	return &Client{
		servers:  map[string]*cloud.Server{},
		Images:   map[string]string{},
		Flavors:  map[string]string{},
		Networks: map[string]string{},
	}
}

// Seed adds a pre-existing server to the fake's listing, as if it had been
// created in a previous reconciler run.
func (c *Client) Seed(s cloud.Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := s
	c.servers[s.ID] = &cp
}

func (c *Client) ListServers(ctx context.Context) ([]cloud.Server, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]cloud.Server, 0, len(c.servers))
	for _, s := range c.servers {
		out = append(out, *s)
	}
	return out, nil
}

func (c *Client) FindServer(ctx context.Context, id string) (*cloud.Server, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.servers[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (c *Client) CreateServer(ctx context.Context, spec cloud.CreateServerSpec) (*cloud.Server, error) {
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.CreateCalls = append(c.CreateCalls, spec)

	c.nextID++
	status := c.CreateStatus
	if status == "" {
		status = cloud.StatusActive
	}

	s := &cloud.Server{
		ID:      fmt.Sprintf("srv-%d", c.nextID),
		Name:    spec.Name,
		Status:  status,
		ImageID: spec.ImageRef,
	}
	c.servers[s.ID] = s
	cp := *s
	return &cp, nil
}

func (c *Client) DeleteServer(ctx context.Context, id string) error {
	if c.DeleteErr != nil {
		return c.DeleteErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.servers, id)
	return nil
}

func (c *Client) FindImage(ctx context.Context, nameOrID string) (string, error) {
	return c.resolve(c.Images, nameOrID)
}

func (c *Client) FindFlavor(ctx context.Context, nameOrID string) (string, error) {
	return c.resolve(c.Flavors, nameOrID)
}

func (c *Client) FindNetwork(ctx context.Context, nameOrID string) (string, error) {
	return c.resolve(c.Networks, nameOrID)
}

func (c *Client) resolve(table map[string]string, nameOrID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := table[nameOrID]; ok {
		return id, nil
	}
	return "", fmt.Errorf("not found: %s", nameOrID)
}
