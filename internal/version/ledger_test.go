package version

import (
	"testing"

	"github.com/FairForge/edgerunner/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFirstVersionBecomesActive(t *testing.T) {
	l := New()
	require.NoError(t, l.Register("fn-a", 1, model.FunctionMetadata{Version: "1"}))

	active, err := l.Active("fn-a")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), active.Version)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	l := New()
	require.NoError(t, l.Register("fn-a", 1, model.FunctionMetadata{}))
	err := l.Register("fn-a", 1, model.FunctionMetadata{})
	assert.ErrorIs(t, err, ErrVersionExists)
}

func TestRollbackPicksLargestLesser(t *testing.T) {
	l := New()
	require.NoError(t, l.Register("fn-a", 1, model.FunctionMetadata{}))
	require.NoError(t, l.Register("fn-a", 2, model.FunctionMetadata{}))
	require.NoError(t, l.Register("fn-a", 5, model.FunctionMetadata{}))
	require.NoError(t, l.SetActive("fn-a", 5))

	e, err := l.Rollback("fn-a")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), e.Version)

	active, err := l.Active("fn-a")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), active.Version)
}

func TestRollbackNoPreviousVersion(t *testing.T) {
	l := New()
	require.NoError(t, l.Register("fn-a", 1, model.FunctionMetadata{}))

	_, err := l.Rollback("fn-a")
	assert.ErrorIs(t, err, ErrNoPreviousVersion)
}

func TestPreviousDoesNotMutateActive(t *testing.T) {
	l := New()
	require.NoError(t, l.Register("fn-a", 1, model.FunctionMetadata{}))
	require.NoError(t, l.Register("fn-a", 2, model.FunctionMetadata{}))
	require.NoError(t, l.SetActive("fn-a", 2))

	prev, err := l.Previous("fn-a")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), prev.Version)

	active, err := l.Active("fn-a")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), active.Version, "Previous must not change the active pointer")
}

func TestListOrdersAscending(t *testing.T) {
	l := New()
	require.NoError(t, l.Register("fn-a", 3, model.FunctionMetadata{}))
	require.NoError(t, l.Register("fn-a", 1, model.FunctionMetadata{}))
	require.NoError(t, l.Register("fn-a", 2, model.FunctionMetadata{}))

	list, err := l.List("fn-a")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uint32{1, 2, 3}, []uint32{list[0].Version, list[1].Version, list[2].Version})
}
