package steps

import (
	"fmt"

	"github.com/dpvpro/vagga/pkg/vagga/config"
	"github.com/dpvpro/vagga/pkg/vagga/digest"
)

// containerStep absorbs another container's resolved version into this
// one's hash without copying its filesystem, the dependency-only half
// of what original_source calls a sub-container reference.
type containerStep struct{ s *config.StepContainer }

func (c containerStep) Hash(d *digest.Digest) error {
	d.FieldString("container-name", c.s.Name)
	return nil
}

// Build resolves (building, if necessary) the referenced container. Its
// full version is not absorbed here: the builder's hash pass resolves
// every DependentOn container and folds that version into the digest
// before calling Hash, so a change anywhere in the dependency absorbs
// into every container that names it.
func (c containerStep) Build(g *Guard, build bool) error {
	if g.Resolver == nil {
		return fmt.Errorf("Container: no resolver configured")
	}
	_, err := g.Resolver.Resolve(c.s.Name)
	return err
}

func (c containerStep) DependentOn() string { return c.s.Name }
