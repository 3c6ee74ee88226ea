package modes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct{ mode Mode }

func (s *stubRunner) Name() Mode                         { return s.mode }
func (s *stubRunner) Run(ctx context.Context) error      { return nil }
func (s *stubRunner) Shutdown(ctx context.Context) error { return nil }

func TestParseMode(t *testing.T) {
	for _, m := range []string{"server", "instance", "all"} {
		mode, err := ParseMode(m)
		require.NoError(t, err)
		assert.Equal(t, Mode(m), mode)
	}

	_, err := ParseMode("backend")
	assert.Error(t, err)
	_, err = ParseMode("")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	const mode Mode = "test-mode"
	Register(mode, func(cfg interface{}) (Runner, error) {
		return &stubRunner{mode: mode}, nil
	})
	defer delete(runners, mode)

	r, err := NewRunner(mode, nil)
	require.NoError(t, err)
	assert.Equal(t, mode, r.Name())
	assert.Contains(t, ListRegistered(), mode)

	_, err = NewRunner("unregistered", nil)
	assert.Error(t, err)
}
