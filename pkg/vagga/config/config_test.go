package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decode(t *testing.T, src string) *Manifest {
	t.Helper()
	var m Manifest
	require.NoError(t, yaml.Unmarshal([]byte(src), &m))
	return &m
}

func TestDecodeSimpleContainer(t *testing.T) {
	m := decode(t, `
containers:
  ubuntu:
    setup:
    - !Install [curl, git]
    - !EnsureDir /var/cache/app
    - !Text
      /etc/motd: "hello\n"
    environ:
      HOME: /root
`)
	require.Contains(t, m.Containers, "ubuntu")
	c := m.Containers["ubuntu"]
	require.Len(t, c.Setup, 3)

	install, ok := c.Setup[0].(*StepInstall)
	require.True(t, ok)
	assert.Equal(t, []string{"curl", "git"}, install.Packages)

	ensure, ok := c.Setup[1].(*StepEnsureDir)
	require.True(t, ok)
	assert.Equal(t, "/var/cache/app", ensure.Path)

	text, ok := c.Setup[2].(*StepText)
	require.True(t, ok)
	assert.Equal(t, "hello\n", text.Files["/etc/motd"])

	assert.Equal(t, "/root", c.Environ["HOME"])
}

func TestDecodeVolumes(t *testing.T) {
	m := decode(t, `
containers:
  app:
    setup: []
    volumes:
      /tmp: !Tmpfs
        size: 100Mi
      /data: !Persistent
        name: data
      /code: !BindRO /work
`)
	c := m.Containers["app"]
	require.Len(t, c.Volumes, 3)

	tmpfs, ok := c.Volumes["/tmp"].(*VolumeTmpfs)
	require.True(t, ok)
	assert.Equal(t, "100Mi", tmpfs.Size)

	persist, ok := c.Volumes["/data"].(*VolumePersistent)
	require.True(t, ok)
	assert.Equal(t, "data", persist.Name)

	bind, ok := c.Volumes["/code"].(*VolumeBindRO)
	require.True(t, ok)
	assert.Equal(t, "/work", bind.Path)
}

func TestGitStepRejectsRevisionAndBranchTogether(t *testing.T) {
	var m Manifest
	err := yaml.Unmarshal([]byte(`
containers:
  app:
    setup:
    - !Git
      url: https://example.com/repo.git
      revision: abc123
      branch: main
      path: /work
`), &m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both revision and branch")
}

func TestValidateDetectsCycle(t *testing.T) {
	m := &Manifest{Containers: map[string]*Container{
		"a": {Setup: []Step{&StepContainer{Name: "b"}}},
		"b": {Setup: []Step{&StepContainer{Name: "a"}}},
	}}
	err := Validate(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateAcceptsDiamond(t *testing.T) {
	m := &Manifest{Containers: map[string]*Container{
		"a": {},
		"b": {Setup: []Step{&StepContainer{Name: "a"}}},
		"c": {Setup: []Step{&StepContainer{Name: "a"}}},
		"d": {Setup: []Step{&StepContainer{Name: "b"}, &StepContainer{Name: "c"}}},
	}}
	assert.NoError(t, Validate(m))
}

func TestValidateRejectsUnknownCommandContainer(t *testing.T) {
	m := &Manifest{
		Containers: map[string]*Container{"ubuntu": {}},
		Commands: map[string]interface{}{
			"run": &Command{Container: "missing"},
		},
	}
	err := Validate(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestDecodeCommandsAndSupervise(t *testing.T) {
	m := decode(t, `
containers:
  ubuntu: {setup: []}
commands:
  shell: !Command
    description: "interactive shell"
    container: ubuntu
    run: [/bin/bash]
  all: !Supervise
    description: "run everything"
    children:
      web: shell
`)
	cmd, ok := m.Commands["shell"].(*Command)
	require.True(t, ok)
	assert.Equal(t, "ubuntu", cmd.Container)
	assert.Equal(t, []string{"/bin/bash"}, cmd.Run)

	sup, ok := m.Commands["all"].(*Supervise)
	require.True(t, ok)
	assert.Equal(t, "shell", sup.Children["web"])
}
