// Package userdata defines the interface boundary for rendering cloud-init
// user-data payloads handed to newly booted servers. The actual templating
// engine (Jinja2-equivalent, reading userdata.yaml.j2) is an external
// collaborator out of scope for this repository (spec §1); this package
// exists only to give the Reconciler something concrete to depend on and a
// fake to test against.
package userdata

import "github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"

// Renderer produces the base64-ready user-data blob for a server about to be
// created in the named group.
type Renderer interface {
	Render(serverName, groupID string, group desiredstate.GroupConfig) (string, error)
}
