package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrerequisiteOrderTopologicallySortsDependencies(t *testing.T) {
	deps := map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}
	order := PrerequisiteOrder([]string{"d"}, func(n string) []string { return deps[n] })
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestPrerequisiteOrderDoesNotLoopOnACycle(t *testing.T) {
	deps := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}
	order := PrerequisiteOrder([]string{"a"}, func(n string) []string { return deps[n] })
	assert.ElementsMatch(t, []string{"a", "b"}, order)
	assert.Len(t, order, 2)
}
