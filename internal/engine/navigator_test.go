package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examsim-backend/internal/model"
)

func TestNavigatorStatuses(t *testing.T) {
	s := newTimed(t, 4, 60)
	require.NoError(t, s.SelectAnswer("q1", 0))
	require.NoError(t, s.SelectAnswer("q2", 0))
	require.NoError(t, s.ToggleFlag("q2"))
	require.NoError(t, s.ToggleFlag("q3"))
	require.NoError(t, s.GoToQuestion(3))

	nav := s.Navigator()
	require.Len(t, nav.Entries, 4)
	assert.Equal(t, model.StatusAttempted, nav.Entries[0].Status)
	assert.Equal(t, model.StatusFlagged, nav.Entries[1].Status)
	assert.Equal(t, model.StatusFlagged, nav.Entries[2].Status)
	assert.Equal(t, model.StatusUnattempted, nav.Entries[3].Status)
	assert.True(t, nav.Entries[3].IsCurrent)
	assert.False(t, nav.Entries[0].IsCurrent)

	assert.Equal(t, 2, nav.Flagged)
	assert.Equal(t, 1, nav.Attempted)
	assert.Equal(t, 1, nav.Unattempted)
}

func TestNavigatorIsPure(t *testing.T) {
	s := newTimed(t, 3, 60)
	require.NoError(t, s.ToggleStrike("q1", 1))
	require.NoError(t, s.ToggleFlag("q2"))

	v := s.Version()
	first := s.Navigator()
	second := s.Navigator()

	assert.Equal(t, first, second)
	assert.Equal(t, v, s.Version())
	// Striking alone does not count as an attempt.
	assert.Equal(t, model.StatusUnattempted, first.Entries[0].Status)
}
