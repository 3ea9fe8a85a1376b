package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examsim-backend/internal/model"
)

func TestReportRequiresEndedSession(t *testing.T) {
	s := newTimed(t, 2, 60)
	_, err := s.Report()
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestReportCountsUnattemptedAgainstScore(t *testing.T) {
	s := newTimed(t, 10, 600)
	qs := sampleQuestions(10)

	// 6 correct, 2 incorrect, 2 left blank.
	for i := 0; i < 6; i++ {
		require.NoError(t, s.SelectAnswer(qs[i].ID, qs[i].CorrectIndex))
	}
	for i := 6; i < 8; i++ {
		require.NoError(t, s.SelectAnswer(qs[i].ID, (qs[i].CorrectIndex+1)%5))
	}
	require.NoError(t, s.ToggleFlag(qs[9].ID))
	require.NoError(t, s.End())

	rep, err := s.Report()
	require.NoError(t, err)

	assert.Equal(t, 10, rep.TotalQuestions)
	assert.Equal(t, 8, rep.Attempted)
	assert.Equal(t, 6, rep.Correct)
	assert.Equal(t, 2, rep.Incorrect)
	assert.Equal(t, 2, rep.Unattempted)
	assert.Equal(t, 1, rep.Flagged)
	assert.Equal(t, 60, rep.PercentageCorrect)
	assert.Equal(t, model.EndReasonSubmitted, rep.EndReason)
	assert.Equal(t, model.ModeTimed, rep.Mode)
	require.Len(t, rep.Questions, 10)
	assert.Nil(t, rep.Questions[9].SelectedIndex)
	assert.True(t, rep.Questions[9].IsFlagged)
}

func TestReportGroupsBySubjectInFirstSeenOrder(t *testing.T) {
	qs := []model.ExamQuestion{
		{ID: "c1", Options: []string{"a", "b"}, CorrectIndex: 0, Category: "Cardiology", Subcategory: "Arrhythmia", Difficulty: model.DifficultyHard},
		{ID: "n1", Options: []string{"a", "b"}, CorrectIndex: 1, Category: "Neurology", Difficulty: model.DifficultyEasy},
		{ID: "c2", Options: []string{"a", "b"}, CorrectIndex: 1, Category: "Cardiology", Subcategory: "Heart Failure", Difficulty: model.DifficultyEasy},
	}
	s, err := NewSession(qs, model.ModeTutor, 0, Options{Now: fixedClock()})
	require.NoError(t, err)

	require.NoError(t, s.SelectAnswer("c1", 0))
	require.NoError(t, s.SelectAnswer("c2", 0))
	require.NoError(t, s.SelectAnswer("n1", 1))
	require.NoError(t, s.End())

	rep, err := s.Report()
	require.NoError(t, err)

	require.Len(t, rep.SubjectPerformance, 2)
	cardio := rep.SubjectPerformance[0]
	assert.Equal(t, "Cardiology", cardio.Name)
	assert.Equal(t, 2, cardio.Total)
	assert.Equal(t, 1, cardio.Correct)
	assert.Equal(t, 50, cardio.Percentage)

	neuro := rep.SubjectPerformance[1]
	assert.Equal(t, "Neurology", neuro.Name)
	assert.Equal(t, 1, neuro.Total)
	assert.Equal(t, 100, neuro.Percentage)

	names := make([]string, 0, len(rep.SubcategoryPerformance))
	for _, g := range rep.SubcategoryPerformance {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"Cardiology/Arrhythmia", "Neurology", "Cardiology/Heart Failure"}, names)

	require.Len(t, rep.DifficultyPerformance, 2)
	assert.Equal(t, "easy", rep.DifficultyPerformance[0].Name)
	assert.Equal(t, 2, rep.DifficultyPerformance[0].Total)
	assert.Equal(t, "hard", rep.DifficultyPerformance[1].Name)
}

func TestReportAggregatesTime(t *testing.T) {
	s := newTimed(t, 4, 100)
	for i := 0; i < 3; i++ {
		s.Tick()
	}
	require.NoError(t, s.GoToQuestion(2))
	s.Tick()
	require.NoError(t, s.End())

	rep, err := s.Report()
	require.NoError(t, err)
	assert.Equal(t, 4, rep.TotalTimeSpent)
	assert.InDelta(t, 1.0, rep.AverageTimePerQuestion, 0.0001)
	assert.Equal(t, 3, rep.Questions[0].TimeSpent)
	assert.Equal(t, 1, rep.Questions[2].TimeSpent)
	assert.Equal(t, 0, rep.Questions[1].TimeSpent)
}

func TestBuildReportOutOfRangeSelectionIsIncorrect(t *testing.T) {
	sel := 7
	st := &model.ExamSession{
		Questions: sampleQuestions(1),
		Responses: map[string]*model.QuestionResponse{"q1": {SelectedIndex: &sel}},
		IsEnded:   true,
	}
	rep, err := BuildReport(st)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Attempted)
	assert.Equal(t, 1, rep.Incorrect)
	assert.Equal(t, 0, rep.PercentageCorrect)
}

func TestPercentRounds(t *testing.T) {
	assert.Equal(t, 0, percent(0, 0))
	assert.Equal(t, 33, percent(1, 3))
	assert.Equal(t, 67, percent(2, 3))
	assert.Equal(t, 100, percent(5, 5))
}
