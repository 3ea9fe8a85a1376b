package engine

import "github.com/stemsi/examsim-backend/internal/model"

// BuildNavigator projects per-question status in question order. Flagged wins
// over attempted.
func BuildNavigator(st *model.ExamSession) model.NavigatorData {
	data := model.NavigatorData{Entries: make([]model.NavigatorEntry, len(st.Questions))}

	for i, q := range st.Questions {
		status := model.StatusUnattempted
		if r, ok := st.Responses[q.ID]; ok {
			switch {
			case r.IsFlagged:
				status = model.StatusFlagged
			case r.SelectedIndex != nil:
				status = model.StatusAttempted
			}
		}

		switch status {
		case model.StatusFlagged:
			data.Flagged++
		case model.StatusAttempted:
			data.Attempted++
		default:
			data.Unattempted++
		}

		data.Entries[i] = model.NavigatorEntry{
			Index:      i,
			QuestionID: q.ID,
			Status:     status,
			IsCurrent:  i == st.CurrentIndex,
		}
	}
	return data
}
