package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/examsim-backend/internal/model"
)

// Hooks are invoked after a mutation has been applied and the session lock
// released, so they may call back into the session.
type Hooks struct {
	// OnChange fires after every applied mutation, ticks included.
	OnChange func(version int64)
	// OnAnswer fires when a selection actually changes.
	OnAnswer func(event model.ProgressEvent)
	// OnEnd fires once, when the session transitions to ended.
	OnEnd func(reason model.EndReason)
}

// Options configures a new or restored session.
type Options struct {
	ID      uuid.UUID
	OwnerID string
	Now     func() time.Time
	Hooks   Hooks
}

// Session is the authoritative state machine for one exam attempt.
// All operations are serialized; each one validates fully before applying.
type Session struct {
	mu    sync.Mutex
	state *model.ExamSession
	now   func() time.Time
	hooks Hooks
}

// notice collects what happened inside the critical section so hooks can run
// after unlock.
type notice struct {
	changed bool
	answer  *model.ProgressEvent
	ended   model.EndReason
}

// NewSession initializes a session over an immutable question list.
func NewSession(questions []model.ExamQuestion, mode model.Mode, durationSeconds int, opts Options) (*Session, error) {
	if err := ValidateQuestions(questions); err != nil {
		return nil, err
	}

	switch mode {
	case model.ModeTimed:
		if durationSeconds <= 0 {
			return nil, ErrInvalidDuration
		}
	case model.ModeTutor:
		durationSeconds = 0
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	s := newSession(opts)
	id := opts.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	qs := make([]model.ExamQuestion, len(questions))
	copy(qs, questions)

	s.state = &model.ExamSession{
		ID:              id,
		OwnerID:         opts.OwnerID,
		Questions:       qs,
		Responses:       make(map[string]*model.QuestionResponse),
		CurrentIndex:    0,
		Mode:            mode,
		InitialMode:     mode,
		DurationSeconds: durationSeconds,
		TimeRemaining:   durationSeconds,
		StartedAt:       s.now(),
	}
	return s, nil
}

// Restore rebuilds a session from a persisted snapshot.
func Restore(snapshot *model.ExamSession, opts Options) (*Session, error) {
	if snapshot == nil {
		return nil, ErrInvalidSnapshot
	}
	if err := ValidateQuestions(snapshot.Questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := validateSnapshot(snapshot); err != nil {
		return nil, err
	}

	s := newSession(opts)
	s.state = snapshot.Clone()
	if s.state.Responses == nil {
		s.state.Responses = make(map[string]*model.QuestionResponse)
	}
	return s, nil
}

func newSession(opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{now: now, hooks: opts.Hooks}
}

// ValidateQuestions checks that questions can back a session: non-empty,
// unique non-empty ids, at least two options and an in-range correct index.
func ValidateQuestions(questions []model.ExamQuestion) error {
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidQuestion, i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidQuestion, q.ID)
		}
		seen[q.ID] = struct{}{}
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: %q needs at least two options", ErrInvalidQuestion, q.ID)
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("%w: %q correct index %d out of range", ErrInvalidQuestion, q.ID, q.CorrectIndex)
		}
	}
	return nil
}

func validateSnapshot(snap *model.ExamSession) error {
	if snap.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidSnapshot)
	}
	if snap.CurrentIndex < 0 || snap.CurrentIndex >= len(snap.Questions) {
		return fmt.Errorf("%w: current index %d", ErrInvalidSnapshot, snap.CurrentIndex)
	}
	switch snap.Mode {
	case model.ModeTutor, model.ModeTimed, model.ModeReview:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidSnapshot, snap.Mode)
	}
	if snap.Mode == model.ModeReview && !snap.IsEnded {
		return fmt.Errorf("%w: review mode on active session", ErrInvalidSnapshot)
	}
	if snap.TimeRemaining < 0 {
		return fmt.Errorf("%w: negative time remaining", ErrInvalidSnapshot)
	}
	for id := range snap.Responses {
		if _, _, ok := snap.QuestionByID(id); !ok {
			return fmt.Errorf("%w: response for unknown question %q", ErrInvalidSnapshot, id)
		}
	}
	return nil
}

// SetHooks replaces the session hooks.
func (s *Session) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ID
}

// OwnerID returns the subject owning the session.
func (s *Session) OwnerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.OwnerID
}

// IsEnded reports whether the session has been finalized.
func (s *Session) IsEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsEnded
}

// Mode returns the current mode.
func (s *Session) Mode() model.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mode
}

// Version returns the mutation counter.
func (s *Session) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Version
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() *model.ExamSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// mutate runs fn inside the critical section. fn must validate before it
// writes anything; returning an error means nothing was written.
func (s *Session) mutate(fn func(st *model.ExamSession, n *notice) error) error {
	s.mu.Lock()
	if s.state.IsEnded {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	var n notice
	if err := fn(s.state, &n); err != nil {
		s.mu.Unlock()
		return err
	}
	if n.changed {
		s.state.Version++
	}
	version := s.state.Version
	hooks := s.hooks
	s.mu.Unlock()

	s.fire(hooks, n, version)
	return nil
}

func (s *Session) fire(hooks Hooks, n notice, version int64) {
	if !n.changed {
		return
	}
	if n.answer != nil && hooks.OnAnswer != nil {
		hooks.OnAnswer(*n.answer)
	}
	if n.ended != "" && hooks.OnEnd != nil {
		hooks.OnEnd(n.ended)
	}
	if hooks.OnChange != nil {
		hooks.OnChange(version)
	}
}

func responseFor(st *model.ExamSession, questionID string) *model.QuestionResponse {
	r, ok := st.Responses[questionID]
	if !ok {
		r = &model.QuestionResponse{Struck: []int{}, Highlights: []model.Highlight{}}
		st.Responses[questionID] = r
	}
	return r
}

func lookupOption(st *model.ExamSession, questionID string, optionIndex int) (*model.ExamQuestion, error) {
	q, _, ok := st.QuestionByID(questionID)
	if !ok {
		return nil, ErrUnknownQuestion
	}
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return nil, ErrOptionOutOfRange
	}
	return q, nil
}

// SelectAnswer records optionIndex as the answer for questionID. Any question
// may be answered, not only the current one. Re-selecting the same option is
// a no-op.
func (s *Session) SelectAnswer(questionID string, optionIndex int) error {
	return s.mutate(func(st *model.ExamSession, n *notice) error {
		q, err := lookupOption(st, questionID, optionIndex)
		if err != nil {
			return err
		}
		if r, ok := st.Responses[questionID]; ok && r.SelectedIndex != nil && *r.SelectedIndex == optionIndex {
			return nil
		}
		r := responseFor(st, questionID)
		idx := optionIndex
		r.SelectedIndex = &idx
		n.changed = true
		n.answer = &model.ProgressEvent{
			SessionID:  st.ID,
			OwnerID:    st.OwnerID,
			QuestionID: questionID,
			IsCorrect:  optionIndex == q.CorrectIndex,
			Confidence: r.Confidence,
			AnsweredAt: s.now(),
		}
		return nil
	})
}

// ToggleStrike adds or removes optionIndex from the struck set. Striking is
// independent of the selection.
func (s *Session) ToggleStrike(questionID string, optionIndex int) error {
	return s.mutate(func(st *model.ExamSession, n *notice) error {
		if _, err := lookupOption(st, questionID, optionIndex); err != nil {
			return err
		}
		r := responseFor(st, questionID)
		pos := sort.SearchInts(r.Struck, optionIndex)
		if pos < len(r.Struck) && r.Struck[pos] == optionIndex {
			r.Struck = append(r.Struck[:pos], r.Struck[pos+1:]...)
		} else {
			r.Struck = append(r.Struck, 0)
			copy(r.Struck[pos+1:], r.Struck[pos:])
			r.Struck[pos] = optionIndex
		}
		n.changed = true
		return nil
	})
}

// ToggleFlag flips the review flag of questionID.
func (s *Session) ToggleFlag(questionID string) error {
	return s.mutate(func(st *model.ExamSession, n *notice) error {
		if _, _, ok := st.QuestionByID(questionID); !ok {
			return ErrUnknownQuestion
		}
		r := responseFor(st, questionID)
		r.IsFlagged = !r.IsFlagged
		n.changed = true
		return nil
	})
}

// SetConfidence records the confidence level reported for questionID.
func (s *Session) SetConfidence(questionID string, level model.Confidence) error {
	return s.mutate(func(st *model.ExamSession, n *notice) error {
		if _, _, ok := st.QuestionByID(questionID); !ok {
			return ErrUnknownQuestion
		}
		if !level.Valid() {
			return ErrInvalidLevel
		}
		if r, ok := st.Responses[questionID]; ok && r.Confidence == level {
			return nil
		}
		responseFor(st, questionID).Confidence = level
		n.changed = true
		return nil
	})
}

// AddHighlight appends a cosmetic highlight marker to questionID.
func (s *Session) AddHighlight(questionID string, h model.Highlight) error {
	return s.mutate(func(st *model.ExamSession, n *notice) error {
		if _, _, ok := st.QuestionByID(questionID); !ok {
			return ErrUnknownQuestion
		}
		if h.Start < 0 || h.End <= h.Start {
			return ErrInvalidHighlight
		}
		r := responseFor(st, questionID)
		r.Highlights = append(r.Highlights, h)
		n.changed = true
		return nil
	})
}

// ClearHighlights removes all highlight markers from questionID.
func (s *Session) ClearHighlights(questionID string) error {
	return s.mutate(func(st *model.ExamSession, n *notice) error {
		if _, _, ok := st.QuestionByID(questionID); !ok {
			return ErrUnknownQuestion
		}
		r, ok := st.Responses[questionID]
		if !ok || len(r.Highlights) == 0 {
			return nil
		}
		r.Highlights = []model.Highlight{}
		n.changed = true
		return nil
	})
}

// NextQuestion advances the current index; a no-op on the last question.
func (s *Session) NextQuestion() error {
	return s.mutate(func(st *model.ExamSession, n *notice) error {
		if st.CurrentIndex >= len(st.Questions)-1 {
			return nil
		}
		st.CurrentIndex++
		n.changed = true
		return nil
	})
}

// PrevQuestion moves the current index back; a no-op on the first question.
func (s *Session) PrevQuestion() error {
	return s.mutate(func(st *model.ExamSession, n *notice) error {
		if st.CurrentIndex <= 0 {
			return nil
		}
		st.CurrentIndex--
		n.changed = true
		return nil
	})
}

// GoToQuestion jumps to index.
func (s *Session) GoToQuestion(index int) error {
	return s.mutate(func(st *model.ExamSession, n *notice) error {
		if index < 0 || index >= len(st.Questions) {
			return ErrIndexOutOfRange
		}
		if index == st.CurrentIndex {
			return nil
		}
		st.CurrentIndex = index
		n.changed = true
		return nil
	})
}

// Tick applies one second of elapsed time. The current question accrues the
// second; in timed mode the countdown drops by one and the session ends in
// the same step that reaches zero. It reports whether further ticks are useful.
func (s *Session) Tick() bool {
	running := true
	err := s.mutate(func(st *model.ExamSession, n *notice) error {
		st.ElapsedSeconds++
		responseFor(st, st.Questions[st.CurrentIndex].ID).TimeSpent++
		n.changed = true

		if st.Mode == model.ModeTimed {
			if st.TimeRemaining > 0 {
				st.TimeRemaining--
			}
			if st.TimeRemaining == 0 {
				s.finish(st, model.EndReasonTimeout)
				n.ended = model.EndReasonTimeout
				running = false
			}
		}
		return nil
	})
	if err != nil {
		return false
	}
	return running
}

// End finalizes the session regardless of remaining time.
func (s *Session) End() error {
	return s.mutate(func(st *model.ExamSession, n *notice) error {
		s.finish(st, model.EndReasonSubmitted)
		n.changed = true
		n.ended = model.EndReasonSubmitted
		return nil
	})
}

func (s *Session) finish(st *model.ExamSession, reason model.EndReason) {
	now := s.now()
	st.IsEnded = true
	st.EndReason = reason
	st.EndedAt = &now
}

// EnterReview moves an ended session into read-only review mode.
func (s *Session) EnterReview() error {
	s.mu.Lock()
	if !s.state.IsEnded {
		s.mu.Unlock()
		return ErrSessionActive
	}
	if s.state.Mode == model.ModeReview {
		s.mu.Unlock()
		return nil
	}
	s.state.Mode = model.ModeReview
	s.state.Version++
	version := s.state.Version
	hooks := s.hooks
	s.mu.Unlock()

	s.fire(hooks, notice{changed: true}, version)
	return nil
}

// Feedback returns correctness for questionID when it may be shown: right
// after answering in tutor mode, or for any answered question once ended.
func (s *Session) Feedback(questionID string) (model.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, _, ok := s.state.QuestionByID(questionID)
	if !ok {
		return model.Feedback{}, ErrUnknownQuestion
	}
	r, ok := s.state.Responses[questionID]
	if !ok || r.SelectedIndex == nil {
		return model.Feedback{}, ErrFeedbackHidden
	}
	if !s.state.IsEnded && s.state.InitialMode != model.ModeTutor {
		return model.Feedback{}, ErrFeedbackHidden
	}
	return model.Feedback{
		QuestionID:           q.ID,
		SelectedIndex:        *r.SelectedIndex,
		CorrectIndex:         q.CorrectIndex,
		IsCorrect:            *r.SelectedIndex == q.CorrectIndex,
		Explanation:          q.Explanation,
		EducationalObjective: q.EducationalObjective,
		PeerPerformance:      q.PeerPerformance,
	}, nil
}

// Navigator returns the navigator grid for the current state.
func (s *Session) Navigator() model.NavigatorData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildNavigator(s.state)
}

// Report builds the analytics report. The session must have ended.
func (s *Session) Report() (*model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildReport(s.state)
}
