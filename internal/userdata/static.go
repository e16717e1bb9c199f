package userdata

import (
	"os"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"
)

// StaticRenderer returns the same cloud-init document for every server,
// read once from a file at construction time. It implements Renderer
// without performing any templating, the honest behavior available
// without the original's Jinja2 engine (spec §1 scopes that out as an
// external collaborator): operators who need per-group/per-server
// substitution must supply their own Renderer.
type StaticRenderer struct {
	Content string
}

// LoadStaticRenderer reads path once and returns a StaticRenderer serving
// its contents verbatim for every Render call.
func LoadStaticRenderer(path string) (*StaticRenderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &StaticRenderer{Content: string(data)}, nil
}

// Render ignores serverName, groupID, and group, and returns the loaded
// content unmodified.
func (r *StaticRenderer) Render(serverName, groupID string, group desiredstate.GroupConfig) (string, error) {
	return r.Content, nil
}
