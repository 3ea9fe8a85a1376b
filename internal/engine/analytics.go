package engine

import (
	"math"

	"github.com/stemsi/examsim-backend/internal/model"
)

// groupAcc accumulates one breakdown group while preserving first-seen order.
type groupAcc struct {
	order  []string
	groups map[string]*model.GroupPerformance
}

func newGroupAcc() *groupAcc {
	return &groupAcc{groups: make(map[string]*model.GroupPerformance)}
}

func (a *groupAcc) add(name string, correct bool, timeSpent int) {
	g, ok := a.groups[name]
	if !ok {
		g = &model.GroupPerformance{Name: name}
		a.groups[name] = g
		a.order = append(a.order, name)
	}
	g.Total++
	g.TimeSpent += timeSpent
	if correct {
		g.Correct++
	}
}

func (a *groupAcc) list() []model.GroupPerformance {
	out := make([]model.GroupPerformance, 0, len(a.order))
	for _, name := range a.order {
		g := *a.groups[name]
		g.Percentage = percent(g.Correct, g.Total)
		out = append(out, g)
	}
	return out
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

var difficultyOrder = []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard}

// BuildReport scores a terminated session. Unattempted questions count
// against the percentage; a selection outside the option range counts as
// attempted and incorrect.
func BuildReport(st *model.ExamSession) (*model.Report, error) {
	if !st.IsEnded {
		return nil, ErrSessionActive
	}

	total := len(st.Questions)
	rep := &model.Report{
		SessionID:      st.ID,
		Mode:           st.InitialMode,
		EndReason:      st.EndReason,
		TotalQuestions: total,
		Questions:      make([]model.QuestionResult, 0, total),
		StartedAt:      st.StartedAt,
		EndedAt:        st.EndedAt,
	}

	subjects := newGroupAcc()
	subcategories := newGroupAcc()
	byDifficulty := newGroupAcc()

	for _, q := range st.Questions {
		res := model.QuestionResult{
			QuestionID:   q.ID,
			Category:     q.Category,
			CorrectIndex: q.CorrectIndex,
		}

		if r, ok := st.Responses[q.ID]; ok {
			res.TimeSpent = r.TimeSpent
			res.IsFlagged = r.IsFlagged
			if r.SelectedIndex != nil {
				sel := *r.SelectedIndex
				res.SelectedIndex = &sel
				res.IsCorrect = sel == q.CorrectIndex && sel >= 0 && sel < len(q.Options)
			}
		}

		if res.SelectedIndex != nil {
			rep.Attempted++
			if res.IsCorrect {
				rep.Correct++
			}
		}
		if res.IsFlagged {
			rep.Flagged++
		}
		rep.TotalTimeSpent += res.TimeSpent

		subjects.add(q.Category, res.IsCorrect, res.TimeSpent)
		sub := q.Category
		if q.Subcategory != "" {
			sub += "/" + q.Subcategory
		}
		subcategories.add(sub, res.IsCorrect, res.TimeSpent)
		if q.Difficulty.Valid() {
			byDifficulty.add(string(q.Difficulty), res.IsCorrect, res.TimeSpent)
		}

		rep.Questions = append(rep.Questions, res)
	}

	rep.Incorrect = rep.Attempted - rep.Correct
	rep.Unattempted = total - rep.Attempted
	rep.PercentageCorrect = percent(rep.Correct, total)
	if total > 0 {
		rep.AverageTimePerQuestion = float64(rep.TotalTimeSpent) / float64(total)
	}
	rep.SubjectPerformance = subjects.list()
	rep.SubcategoryPerformance = subcategories.list()

	rep.DifficultyPerformance = make([]model.GroupPerformance, 0, len(difficultyOrder))
	diffs := byDifficulty.list()
	for _, d := range difficultyOrder {
		for _, g := range diffs {
			if g.Name == string(d) {
				rep.DifficultyPerformance = append(rep.DifficultyPerformance, g)
			}
		}
	}

	return rep, nil
}
