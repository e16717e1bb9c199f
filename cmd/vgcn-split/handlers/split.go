// Package handlers implements the business logic for the vgcn-split CLI.
package handlers

import (
	"fmt"
	"os"

	"github.com/usegalaxy-eu/vgcn-reconciler/internal/splitter"
)

// SplitOptions bundles the vgcn-split CLI's flags.
type SplitOptions struct {
	ResourcesFile string
	Fraction      float64
	OutputFile    string // empty means stdout
}

// Split parses opts.ResourcesFile, allocates primary/secondary capacity per
// spec §4.8, and writes the result to opts.OutputFile (or stdout when
// unset).
func Split(opts SplitOptions) error {
	data, err := os.ReadFile(opts.ResourcesFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", opts.ResourcesFile, err)
	}

	doc, err := splitter.ParseDocument(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", opts.ResourcesFile, err)
	}

	split, err := splitter.Allocate(doc, opts.Fraction)
	if err != nil {
		return fmt.Errorf("allocating: %w", err)
	}

	out, err := splitter.Render(split)
	if err != nil {
		return fmt.Errorf("rendering result: %w", err)
	}

	if opts.OutputFile == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(opts.OutputFile, out, 0o644)
}
