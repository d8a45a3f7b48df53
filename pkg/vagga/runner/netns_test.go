package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinNetnsRejectsUnconfiguredBoundary(t *testing.T) {
	assert.Error(t, JoinNetns(&NetnsConfig{}))
	assert.NoError(t, JoinNetns(&NetnsConfig{Bridge: "vagga0", Address: "10.0.0.2/24"}))
}
