package engine

import "github.com/stemsi/examsim-backend/internal/model"

func revealed(st *model.ExamSession, questionID string) bool {
	if st.IsEnded {
		return true
	}
	if st.InitialMode != model.ModeTutor {
		return false
	}
	r, ok := st.Responses[questionID]
	return ok && r.SelectedIndex != nil
}

// BuildView projects st for the candidate, hiding answers that are not yet
// visible under the session's mode.
func BuildView(st *model.ExamSession) *model.SessionView {
	v := &model.SessionView{
		ID:             st.ID,
		Mode:           st.Mode,
		InitialMode:    st.InitialMode,
		CurrentIndex:   st.CurrentIndex,
		TimeRemaining:  st.TimeRemaining,
		ElapsedSeconds: st.ElapsedSeconds,
		IsEnded:        st.IsEnded,
		EndReason:      st.EndReason,
		StartedAt:      st.StartedAt,
		EndedAt:        st.EndedAt,
		Version:        st.Version,
		Questions:      make([]model.QuestionView, len(st.Questions)),
		Responses:      make(map[string]*model.QuestionResponse, len(st.Responses)),
	}

	for i, q := range st.Questions {
		qv := model.QuestionView{
			ID:          q.ID,
			Stem:        q.Stem,
			Options:     q.Options,
			Category:    q.Category,
			Subcategory: q.Subcategory,
			Difficulty:  q.Difficulty,
		}
		if revealed(st, q.ID) {
			ci := q.CorrectIndex
			qv.CorrectIndex = &ci
			qv.Explanation = q.Explanation
			qv.EducationalObjective = q.EducationalObjective
			qv.PeerPerformance = q.PeerPerformance
		}
		v.Questions[i] = qv
	}
	for id, r := range st.Responses {
		v.Responses[id] = r.Clone()
	}
	return v
}

// View returns the candidate-facing projection of the current state.
func (s *Session) View() *model.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildView(s.state)
}

// TickState returns the compact state used for stream updates.
func (s *Session) TickState() model.TickState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.TickState{
		SessionID:     s.state.ID,
		Mode:          s.state.Mode,
		CurrentIndex:  s.state.CurrentIndex,
		TimeRemaining: s.state.TimeRemaining,
		IsEnded:       s.state.IsEnded,
		Version:       s.state.Version,
	}
}

// Response returns a copy of the response recorded for questionID, or nil if
// the question has not been touched.
func (s *Session) Response(questionID string) *model.QuestionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.Responses[questionID]
	if !ok {
		return nil
	}
	return r.Clone()
}
