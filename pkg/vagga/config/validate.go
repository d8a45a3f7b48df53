package config

import (
	"fmt"

	"github.com/dpvpro/vagga/pkg/vaggaerr"
)

// nodeState tracks DFS progress for cycle detection: absent means
// unvisited, inStack means currently on the recursion stack, done
// means fully processed with no cycle found through it.
type nodeState int

const (
	unvisited nodeState = iota
	inStack
	done
)

// Validate checks structural invariants the builder relies on:
// container dependency cycles, and that commands/volumes reference
// containers that actually exist.
func Validate(m *Manifest) error {
	state := make(map[string]nodeState, len(m.Containers))
	for name := range m.Containers {
		if state[name] == unvisited {
			if err := visitContainer(m, name, state, nil); err != nil {
				return err
			}
		}
	}

	for cmdName, raw := range m.Commands {
		container := ""
		switch c := raw.(type) {
		case *Command:
			container = c.Container
		case *CapsuleCommand:
			continue
		case *Supervise:
			for _, child := range c.Children {
				if _, ok := m.Commands[child]; !ok {
					return &vaggaerr.ConfigError{Reason: fmt.Sprintf("command %q: supervised child %q is not defined", cmdName, child)}
				}
			}
			continue
		}
		if container == "" {
			continue
		}
		if _, ok := m.Containers[container]; !ok {
			return &vaggaerr.ConfigError{Reason: fmt.Sprintf("command %q: container %q is not defined", cmdName, container)}
		}
	}

	return nil
}

func visitContainer(m *Manifest, name string, state map[string]nodeState, stack []string) error {
	state[name] = inStack
	stack = append(stack, name)

	c, ok := m.Containers[name]
	if !ok {
		return &vaggaerr.ConfigError{Reason: fmt.Sprintf("container %q referenced but not defined (path: %v)", name, stack)}
	}

	for _, dep := range containerDeps(c) {
		switch state[dep] {
		case inStack:
			return &vaggaerr.ConfigError{Reason: fmt.Sprintf("container dependency cycle: %v -> %s", stack, dep)}
		case unvisited:
			if err := visitContainer(m, dep, state, stack); err != nil {
				return err
			}
		}
	}

	state[name] = done
	return nil
}

// containerDeps returns the names of containers a container's steps
// and volumes reference, in step order.
func containerDeps(c *Container) []string {
	var deps []string
	for _, step := range c.Setup {
		switch s := step.(type) {
		case *StepContainer:
			deps = append(deps, s.Name)
		case *StepSubConfig:
			if s.Source == "container" && s.Container != "" {
				deps = append(deps, s.Container)
			}
		}
	}
	for _, v := range c.Volumes {
		if cv, ok := v.(*VolumeContainer); ok {
			deps = append(deps, cv.Name)
		}
	}
	return deps
}
