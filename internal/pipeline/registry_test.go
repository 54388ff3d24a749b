package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicateAndNil(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewNormalizeStage(nil)))
	assert.Error(t, r.Register(NewNormalizeStage(nil)))
	assert.Error(t, r.Register(nil))
	assert.Equal(t, 1, r.Count())
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	r := NewRegistry()
	mustRegister(r, NewNormalizeStage(nil))
	assert.Panics(t, func() {
		mustRegister(r, NewNormalizeStage(nil))
	})
}
