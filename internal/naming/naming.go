// Package naming generates deterministic, collision-free server names for
// the fleet. Determinism (ascending search from 0000, not random) is
// intentional: it keeps unique_name reproducible and testable, per spec
// §4.1, unlike the teacher's random-suffix scheme for Hetzner resources.
package naming

import (
	"fmt"
	"strings"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/vgcnerr"
)

// Prefix is the namespace every server name in this fleet is rooted under.
const Prefix = "vgcnbwc-"

const slots = 10000

// GroupPrefix returns the full name prefix for a group identifier, e.g.
// "vgcnbwc-compute".
func GroupPrefix(groupID string) string {
	return Prefix + groupID
}

// UniqueName returns "{prefix}-NNNN" for the smallest NNNN in [0000, 9999]
// not present in existing, searched in ascending order so results are
// reproducible given the same existing set.
func UniqueName(prefix string, existing map[string]bool) (string, error) {
	for i := 0; i < slots; i++ {
		name := fmt.Sprintf("%s-%04d", prefix, i)
		if !existing[name] {
			return name, nil
		}
	}
	return "", &vgcnerr.NamesExhausted{Prefix: prefix}
}

// BelongsToGroup reports whether a server name belongs to the group
// identified by groupID. The trailing separator is mandatory: without it,
// "vgcnbwc-computegpu-0000" would be considered a match for the group
// identifier "compute" despite sharing only a partial prefix. It does not
// separate identifiers that are "-"-delimited prefixes of each other
// ("vgcnbwc-compute-general-0000" matches both "compute-general" and
// "compute"); desiredstate.Validate rejects such pairs. See spec §4.6 and §9.
func BelongsToGroup(serverName, groupID string) bool {
	return strings.HasPrefix(serverName, GroupPrefix(groupID)+"-")
}
