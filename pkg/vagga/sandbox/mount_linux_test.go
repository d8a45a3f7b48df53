//go:build linux

package sandbox

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdMappingsDefaultsToSingleIdentityRange(t *testing.T) {
	got := idMappings(nil, 1000)
	assert.Equal(t, []syscall.SysProcIDMap{{ContainerID: 0, HostID: 1000, Size: 1}}, got)
}

func TestIdMappingsPassesThroughExplicitRanges(t *testing.T) {
	got := idMappings([]IDMap{
		{ContainerID: 0, HostID: 1000, Size: 1},
		{ContainerID: 1, HostID: 100000, Size: 65536},
	}, 1000)
	assert.Equal(t, []syscall.SysProcIDMap{
		{ContainerID: 0, HostID: 1000, Size: 1},
		{ContainerID: 1, HostID: 100000, Size: 65536},
	}, got)
}
