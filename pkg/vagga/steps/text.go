package steps

import (
	"fmt"
	"os"
	"sort"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
)

type textStep struct{ s *config.StepText }

func (t textStep) Hash(d *digest.Digest) error {
	keys := make([]string, 0, len(t.s.Files))
	for k := range t.s.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.FieldString(k, t.s.Files[k])
	}
	return nil
}

func (t textStep) Build(g *Guard, build bool) error {
	if !build {
		return nil
	}
	keys := make([]string, 0, len(t.s.Files))
	for k := range t.s.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, path := range keys {
		real := rootedPath(g.RootDir, path)
		if err := os.WriteFile(real, []byte(t.s.Files[path]), 0o644); err != nil {
			return fmt.Errorf("Text: writing %s: %w", path, err)
		}
	}
	return nil
}

func (textStep) DependentOn() string { return "" }
