package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterStoresPayloadByName(t *testing.T) {
	called := false
	Register("sandbox-test:noop", func(cfg *Config, data []byte) error {
		called = true
		assert.Equal(t, "payload-data", string(data))
		return nil
	})
	defer delete(payloads, "sandbox-test:noop")

	fn, ok := payloads["sandbox-test:noop"]
	assert.True(t, ok)
	assert.NoError(t, fn(&Config{}, []byte("payload-data")))
	assert.True(t, called)
}

func TestRegisterLastWriterWins(t *testing.T) {
	Register("sandbox-test:dup", func(cfg *Config, data []byte) error { return nil })
	Register("sandbox-test:dup", func(cfg *Config, data []byte) error { return errors.New("second") })
	defer delete(payloads, "sandbox-test:dup")

	fn, ok := payloads["sandbox-test:dup"]
	assert.True(t, ok)
	assert.EqualError(t, fn(&Config{}, nil), "second")
}

func TestMaybeRunPayloadFalseWithoutSentinel(t *testing.T) {
	t.Setenv(envPayload, "")
	assert.False(t, MaybeRunPayload())
}
