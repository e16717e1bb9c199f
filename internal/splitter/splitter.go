// Package splitter implements the Secondary-Cluster Splitter: a pure,
// offline preprocessor that re-homes a fraction of each deployment group
// onto a secondary HTCondor cluster image, emitting a new resources
// document. Grounded on original_source/htcondor_migration.py's
// allocate_resources and IMAGE_MAPPING (spec §4.8).
package splitter

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/desiredstate"
)

// secondaryImage mirrors htcondor_migration.py's IMAGE_MAPPING: the image
// alias a group is given once its secondary half is re-homed.
var secondaryImage = map[string]string{
	"default":                "htcondor-secondary",
	"gpu":                    "htcondor-secondary-gpu",
	"secure":                 "htcondor-secondary",
	"alma":                   "htcondor-secondary",
	"htcondor-secondary":     "htcondor-secondary",
	"htcondor-secondary-gpu": "htcondor-secondary-gpu",
}

const secondarySuffix = "-htcondor-secondary"

// FractionError reports a fraction outside the valid [0, 1] range.
type FractionError struct {
	Fraction float64
}

func (e *FractionError) Error() string {
	return fmt.Sprintf("fraction must be between 0 and 1, got %v", e.Fraction)
}

// Entry is one deployment group in document order.
type Entry struct {
	ID     string
	Config desiredstate.GroupConfig
}

// Document is an order-preserving view of a resources.yaml document: every
// field the reconciler needs, plus the deployment groups in the exact order
// they appeared on disk. desiredstate.DesiredState's Deployment is a plain
// map and cannot carry this ordering, which is why the splitter keeps its
// own representation instead of operating on desiredstate.DesiredState
// directly.
type Document struct {
	Images         map[string]string
	NodesInventory map[string]int
	Network        string
	SSHKey         string
	SecGroups      []string
	PubKeys        []string
	Graceful       bool
	Deployment     []Entry
}

// ParseDocument decodes a resources.yaml-style document while preserving
// deployment key order, which plain yaml.Unmarshal into a Go map cannot do.
func ParseDocument(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("parsing document: empty document")
	}
	top := root.Content[0]

	var shallow struct {
		Images         map[string]string `yaml:"images"`
		NodesInventory map[string]int    `yaml:"nodes_inventory"`
		Network        string            `yaml:"network"`
		SSHKey         string            `yaml:"sshkey"`
		SecGroups      []string          `yaml:"secgroups,omitempty"`
		PubKeys        []string          `yaml:"pubkeys,omitempty"`
		Graceful       bool              `yaml:"graceful"`
	}
	if err := top.Decode(&shallow); err != nil {
		return nil, fmt.Errorf("decoding document fields: %w", err)
	}

	deployNode, err := mappingValue(top, "deployment")
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Images:         shallow.Images,
		NodesInventory: shallow.NodesInventory,
		Network:        shallow.Network,
		SSHKey:         shallow.SSHKey,
		SecGroups:      shallow.SecGroups,
		PubKeys:        shallow.PubKeys,
		Graceful:       shallow.Graceful,
	}
	for i := 0; i+1 < len(deployNode.Content); i += 2 {
		keyNode, valNode := deployNode.Content[i], deployNode.Content[i+1]
		var cfg desiredstate.GroupConfig
		if err := valNode.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decoding group %q: %w", keyNode.Value, err)
		}
		doc.Deployment = append(doc.Deployment, Entry{ID: keyNode.Value, Config: cfg})
	}
	return doc, nil
}

func mappingValue(mapping *yaml.Node, key string) (*yaml.Node, error) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1], nil
		}
	}
	return nil, fmt.Errorf("document missing required key %q", key)
}

// Render serializes a Document back to YAML, emitting deployment groups in
// doc.Deployment's slice order rather than Go's unordered map iteration.
func Render(doc *Document) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	put := func(key string, value interface{}) error {
		var valNode yaml.Node
		if err := valNode.Encode(value); err != nil {
			return fmt.Errorf("encoding %q: %w", key, err)
		}
		root.Content = append(root.Content, scalarNode(key), &valNode)
		return nil
	}

	if err := put("images", doc.Images); err != nil {
		return nil, err
	}
	if err := put("nodes_inventory", doc.NodesInventory); err != nil {
		return nil, err
	}
	if err := put("network", doc.Network); err != nil {
		return nil, err
	}
	if doc.SSHKey != "" {
		if err := put("sshkey", doc.SSHKey); err != nil {
			return nil, err
		}
	}
	if len(doc.SecGroups) > 0 {
		if err := put("secgroups", doc.SecGroups); err != nil {
			return nil, err
		}
	}
	if len(doc.PubKeys) > 0 {
		if err := put("pubkeys", doc.PubKeys); err != nil {
			return nil, err
		}
	}
	if err := put("graceful", doc.Graceful); err != nil {
		return nil, err
	}

	deployNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range doc.Deployment {
		var valNode yaml.Node
		if err := valNode.Encode(e.Config); err != nil {
			return nil, fmt.Errorf("encoding group %q: %w", e.ID, err)
		}
		deployNode.Content = append(deployNode.Content, scalarNode(e.ID), &valNode)
	}
	root.Content = append(root.Content, scalarNode("deployment"), deployNode)

	out, err := yaml.Marshal(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}})
	if err != nil {
		return nil, fmt.Errorf("serializing document: %w", err)
	}
	return out, nil
}

func scalarNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// Allocate splits every group's count between a primary and secondary
// HTCondor cluster by fraction, per spec §4.8. It does not mutate doc.
func Allocate(doc *Document, fraction float64) (*Document, error) {
	if fraction < 0 || fraction > 1 {
		return nil, &FractionError{Fraction: fraction}
	}

	out := &Document{
		Images:         doc.Images,
		NodesInventory: doc.NodesInventory,
		Network:        doc.Network,
		SSHKey:         doc.SSHKey,
		SecGroups:      doc.SecGroups,
		PubKeys:        doc.PubKeys,
		Graceful:       doc.Graceful,
	}

	var upload, interactive, otherNonTraining, training []Entry

	for _, e := range doc.Deployment {
		primaryCount := int(math.Ceil(float64(e.Config.Count) * (1 - fraction)))
		isTraining := strings.HasPrefix(e.ID, "training") || strings.Contains(desiredstate.GroupTag(e.ID, e.Config), "training")

		var secondaryCount int
		if isTraining {
			secondaryCount = e.Config.Count - primaryCount
		} else {
			secondaryCount = int(math.Ceil(float64(e.Config.Count) * fraction))
		}

		var primary, secondary *Entry
		if primaryCount > 0 {
			cfg := e.Config
			cfg.Count = primaryCount
			primary = &Entry{ID: e.ID, Config: cfg}
		}
		if secondaryCount > 0 {
			image, ok := secondaryImage[e.Config.ImageAlias()]
			if !ok {
				return nil, fmt.Errorf("group %q: no secondary image mapping for image alias %q", e.ID, e.Config.ImageAlias())
			}
			cfg := e.Config
			cfg.Count = secondaryCount
			cfg.Image = image
			cfg.SecondaryHTCondorCluster = true
			secondary = &Entry{ID: e.ID + secondarySuffix, Config: cfg}
		}

		tag := desiredstate.GroupTag(e.ID, e.Config)
		switch {
		case isTraining:
			if secondary != nil {
				training = append(training, *secondary)
			}
			if primary != nil {
				training = append(training, *primary)
			}
		case tag == "upload":
			if secondary != nil {
				upload = append(upload, *secondary)
			}
			if primary != nil {
				upload = append(upload, *primary)
			}
		case tag == "interactive":
			if secondary != nil {
				interactive = append(interactive, *secondary)
			}
			if primary != nil {
				interactive = append(interactive, *primary)
			}
		default:
			if secondary != nil {
				otherNonTraining = append(otherNonTraining, *secondary)
			}
			if primary != nil {
				otherNonTraining = append(otherNonTraining, *primary)
			}
		}
	}

	out.Deployment = make([]Entry, 0, len(upload)+len(interactive)+len(otherNonTraining)+len(training))
	out.Deployment = append(out.Deployment, upload...)
	out.Deployment = append(out.Deployment, interactive...)
	out.Deployment = append(out.Deployment, otherNonTraining...)
	out.Deployment = append(out.Deployment, training...)

	return out, nil
}
