// Package cloud defines the contract the reconciler needs from an
// OpenStack-style compute cloud. The real implementation (gophercloud calls
// to create/delete/list servers, resolve images/flavors/networks) is an
// external collaborator out of scope for this specification (spec §1); this
// package owns only the interface and the value types the rest of the
// reconciler is written against, plus a fake (internal/cloud/fake) used by
// every other package's tests.
package cloud

import "context"

// ServerStatus mirrors the subset of OpenStack Nova VM states this system
// cares about.
type ServerStatus string

const (
	StatusActive ServerStatus = "ACTIVE"
	StatusError  ServerStatus = "ERROR"
	StatusBuild  ServerStatus = "BUILD"
)

// Server is the observed state of a single fleet member.
type Server struct {
	ID        string
	Name      string
	Status    ServerStatus
	ImageID   string // empty for volume-booted servers, per spec §4.6
	Fault     string // populated by the cloud when Status == StatusError
	Addresses map[string][]string // network name -> IP addresses
}

// BlockDevice describes a block_device_mapping_v2 entry for volume-boot or
// attached-volume servers.
type BlockDevice struct {
	BootIndex           int
	SourceType          string
	DestinationType     string
	VolumeSize          int
	VolumeType          string
	DeleteOnTermination bool
}

// CreateServerSpec is the full set of fields the OpenStack create-server
// call needs, per spec §6.
type CreateServerSpec struct {
	Name                string
	FlavorRef           string
	ImageRef            string
	KeyName             string
	AvailabilityZone    string
	NetworkIDs          []string
	UserDataBase64      string
	SecurityGroups      []string
	BlockDeviceMappings []BlockDevice
}

// Client is the set of cloud operations the reconciler depends on. spec §6
// names this contract exactly: list/find/create/delete servers plus
// find-by-name for images, flavors, and networks.
type Client interface {
	ListServers(ctx context.Context) ([]Server, error)
	FindServer(ctx context.Context, id string) (*Server, error)
	CreateServer(ctx context.Context, spec CreateServerSpec) (*Server, error)
	DeleteServer(ctx context.Context, id string) error
	FindImage(ctx context.Context, nameOrID string) (string, error)
	FindFlavor(ctx context.Context, nameOrID string) (string, error)
	FindNetwork(ctx context.Context, nameOrID string) (string, error)
}
