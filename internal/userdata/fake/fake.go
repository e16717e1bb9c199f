// Package fake provides a test double for userdata.Renderer.
package fake

import "github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"

// Renderer returns Template verbatim (no substitution), or Err if set, for
// exercising the Reconciler's create path without a real templating engine.
type Renderer struct {
	Template string // empty means "#cloud-config\nhostname: <serverName>\n"
	Err      error
	Calls    []Call
}

// Call records one invocation for assertions.
type Call struct {
	ServerName, GroupID string
	Group               desiredstate.GroupConfig
}

func (r *Renderer) Render(serverName, groupID string, group desiredstate.GroupConfig) (string, error) {
	r.Calls = append(r.Calls, Call{ServerName: serverName, GroupID: groupID, Group: group})
	if r.Err != nil {
		return "", r.Err
	}
	template := r.Template
	if template == "" {
		template = "#cloud-config\nhostname: " + serverName + "\n"
	}
	return template, nil
}
