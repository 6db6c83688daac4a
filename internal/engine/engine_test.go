package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/peakprep/peakprep-backend/internal/model"
)

// memStore is an in-memory SnapshotStore holding deep copies, so tests see
// exactly what a reconnecting client would load.
type memStore struct {
	saved *model.PracticeSession
	saves int
}

func (m *memStore) Save(_ context.Context, s *model.PracticeSession) error {
	m.saved = copySession(s)
	m.saves++
	return nil
}

func (m *memStore) Load(_ context.Context) (*model.PracticeSession, error) {
	return copySession(m.saved), nil
}

func (m *memStore) Clear(_ context.Context) error {
	m.saved = nil
	return nil
}

// recordingOutbox counts side effect calls and remembers the last payloads.
type recordingOutbox struct {
	started      int
	answersSaved int
	moved        int
	completed    int
	lastAnswer   model.UserAnswer
	lastCorrect  *bool
	lastSession  *model.PracticeSession
}

func (r *recordingOutbox) SessionStarted(_ context.Context, s *model.PracticeSession) {
	r.started++
	r.lastSession = s
}

func (r *recordingOutbox) AnswerSaved(_ context.Context, s *model.PracticeSession, a model.UserAnswer, isCorrect *bool) {
	r.answersSaved++
	r.lastAnswer = a
	r.lastCorrect = isCorrect
	r.lastSession = s
}

func (r *recordingOutbox) ProgressMoved(_ context.Context, s *model.PracticeSession) {
	r.moved++
	r.lastSession = s
}

func (r *recordingOutbox) SessionCompleted(_ context.Context, s *model.PracticeSession) {
	r.completed++
	r.lastSession = s
}

func testQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            uuid.New(),
			TestType:      model.TestTypeSHSAT,
			Subject:       "Math",
			Topic:         "Algebra",
			Difficulty:    model.DifficultyMedium,
			QuestionText:  "placeholder",
			OptionA:       "a",
			OptionB:       "b",
			OptionC:       "c",
			OptionD:       "d",
			CorrectAnswer: model.ChoiceA,
			TimeAllocated: 90,
		}
	}
	return qs
}

func newTestEngine(t *testing.T) (*Engine, *recordingOutbox, *memStore) {
	t.Helper()
	out := &recordingOutbox{}
	store := &memStore{}
	e := New(uuid.New(), out, store, zerolog.Nop())
	e.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return e, out, store
}

func startSession(t *testing.T, e *Engine, qs []model.Question) {
	t.Helper()
	e.Dispatch(context.Background(), StartSession{
		TestType:    model.TestTypeSHSAT,
		SessionType: model.SessionTypeTopicPractice,
		Subject:     "Math",
		Topic:       "Algebra",
		Questions:   qs,
	})
	if e.Session() == nil {
		t.Fatal("expected live session after start")
	}
}

func TestStartSession(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesLiveSession", func(t *testing.T) {
		e, out, store := newTestEngine(t)
		startSession(t, e, testQuestions(3))

		s := e.Session()
		if s.CurrentQuestion != 0 {
			t.Errorf("current question = %d, want 0", s.CurrentQuestion)
		}
		if s.LocalID == "" {
			t.Error("local id must be set at start")
		}
		if s.IsPaused || s.IsCompleted {
			t.Error("new session must be active")
		}
		if out.started != 1 {
			t.Errorf("started events = %d, want 1", out.started)
		}
		if store.saved == nil {
			t.Error("snapshot must be written synchronously on start")
		}
	})

	t.Run("EmptyQuestionListDropped", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		e.Dispatch(ctx, StartSession{TestType: model.TestTypeSHSAT})
		if e.Session() != nil {
			t.Error("start with no questions must not create a session")
		}
		if out.started != 0 {
			t.Error("no remote create for a dropped start")
		}
	})

	t.Run("RestartDiscardsPrevious", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		startSession(t, e, testQuestions(3))
		first := e.Session().LocalID

		e.Dispatch(ctx, AnswerQuestion{QuestionID: e.Session().Questions[0].ID, Answer: model.ChoiceB})
		startSession(t, e, testQuestions(2))

		s := e.Session()
		if s.LocalID == first {
			t.Error("restart must mint a new local id")
		}
		if len(s.Answers) != 0 {
			t.Error("restart must not carry answers over")
		}
		if out.started != 2 {
			t.Errorf("started events = %d, want 2", out.started)
		}
	})
}

func TestAnswerQuestion(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordsSelection", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		qs := testQuestions(3)
		startSession(t, e, qs)

		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[1].ID, Answer: model.ChoiceA})

		s := e.Session()
		ans := s.Answers[qs[1].ID]
		if ans == nil || ans.SelectedAnswer == nil || *ans.SelectedAnswer != model.ChoiceA {
			t.Fatal("selection not recorded")
		}
		if out.answersSaved != 1 {
			t.Errorf("answer saves = %d, want 1", out.answersSaved)
		}
		if out.lastCorrect == nil || !*out.lastCorrect {
			t.Error("choosing the correct option must report correct")
		}
	})

	t.Run("SameSelectionDoesNotRefire", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		qs := testQuestions(2)
		startSession(t, e, qs)

		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[0].ID, Answer: model.ChoiceB})
		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[0].ID, Answer: model.ChoiceB})

		if out.answersSaved != 1 {
			t.Errorf("answer saves = %d, want 1 (identical re-select is a no-op)", out.answersSaved)
		}
	})

	t.Run("ChangedSelectionOverwrites", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		qs := testQuestions(2)
		startSession(t, e, qs)

		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[0].ID, Answer: model.ChoiceB})
		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[0].ID, Answer: model.ChoiceC})

		s := e.Session()
		if *s.Answers[qs[0].ID].SelectedAnswer != model.ChoiceC {
			t.Error("later selection must win")
		}
		if len(s.Answers) != 1 {
			t.Errorf("answer entries = %d, want 1", len(s.Answers))
		}
		if out.answersSaved != 2 {
			t.Errorf("answer saves = %d, want 2", out.answersSaved)
		}
		if out.lastCorrect == nil || *out.lastCorrect {
			t.Error("wrong option must report incorrect")
		}
	})

	t.Run("UnknownQuestionDropped", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		startSession(t, e, testQuestions(2))

		e.Dispatch(ctx, AnswerQuestion{QuestionID: uuid.New(), Answer: model.ChoiceA})

		if len(e.Session().Answers) != 0 {
			t.Error("unknown question id must be a no-op")
		}
		if out.answersSaved != 0 {
			t.Error("no remote write for a dropped answer")
		}
	})

	t.Run("InvalidChoiceDropped", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		qs := testQuestions(2)
		startSession(t, e, qs)

		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[0].ID, Answer: model.Choice("E")})

		if len(e.Session().Answers) != 0 || out.answersSaved != 0 {
			t.Error("invalid choice must be a no-op")
		}
	})

	t.Run("AfterCompletionDropped", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		qs := testQuestions(2)
		startSession(t, e, qs)
		e.Dispatch(ctx, CompleteSession{})
		saves := out.answersSaved

		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[0].ID, Answer: model.ChoiceA})

		if out.answersSaved != saves {
			t.Error("completed session must reject answers")
		}
	})
}

func TestGoToQuestion(t *testing.T) {
	ctx := context.Background()

	t.Run("Moves", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		startSession(t, e, testQuestions(5))

		e.Dispatch(ctx, GoToQuestion{Index: 3})

		if got := e.Session().CurrentQuestion; got != 3 {
			t.Errorf("current question = %d, want 3", got)
		}
		if out.moved != 1 {
			t.Errorf("progress events = %d, want 1", out.moved)
		}
	})

	t.Run("ClampsOutOfRange", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		startSession(t, e, testQuestions(4))

		e.Dispatch(ctx, GoToQuestion{Index: 99})
		if got := e.Session().CurrentQuestion; got != 3 {
			t.Errorf("high index clamps to %d, got %d", 3, got)
		}

		e.Dispatch(ctx, GoToQuestion{Index: -7})
		if got := e.Session().CurrentQuestion; got != 0 {
			t.Errorf("negative index clamps to 0, got %d", got)
		}
	})

	t.Run("SameIndexNoEvent", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		startSession(t, e, testQuestions(3))

		e.Dispatch(ctx, GoToQuestion{Index: 0})

		if out.moved != 0 {
			t.Error("navigating to the current index must not emit progress")
		}
	})
}

func TestToggleFlag(t *testing.T) {
	ctx := context.Background()

	t.Run("FlagBeforeAnswerCreatesPlaceholder", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		qs := testQuestions(2)
		startSession(t, e, qs)

		e.Dispatch(ctx, ToggleFlag{QuestionID: qs[0].ID})

		ans := e.Session().Answers[qs[0].ID]
		if ans == nil || !ans.IsFlagged {
			t.Fatal("flag must create a flagged placeholder entry")
		}
		if ans.SelectedAnswer != nil {
			t.Error("placeholder must have no selection")
		}
		if out.lastCorrect != nil {
			t.Error("correctness is unknown for an unanswered flag")
		}
	})

	t.Run("ToggleFlips", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		qs := testQuestions(2)
		startSession(t, e, qs)

		e.Dispatch(ctx, ToggleFlag{QuestionID: qs[0].ID})
		e.Dispatch(ctx, ToggleFlag{QuestionID: qs[0].ID})

		if e.Session().Answers[qs[0].ID].IsFlagged {
			t.Error("second toggle must clear the flag")
		}
	})

	t.Run("AnswerAfterFlagKeepsFlag", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		qs := testQuestions(2)
		startSession(t, e, qs)

		e.Dispatch(ctx, ToggleFlag{QuestionID: qs[0].ID})
		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[0].ID, Answer: model.ChoiceA})

		ans := e.Session().Answers[qs[0].ID]
		if ans == nil || !ans.IsFlagged {
			t.Fatal("answering must not clear an earlier flag")
		}
		if ans.SelectedAnswer == nil || *ans.SelectedAnswer != model.ChoiceA {
			t.Error("selection must land on the flagged placeholder")
		}
		if len(e.Session().Answers) != 1 {
			t.Error("flag then answer must share one entry")
		}
		if out.lastCorrect == nil || !*out.lastCorrect {
			t.Error("the answer write carries correctness")
		}
	})

	t.Run("FlagKeepsSelection", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		qs := testQuestions(2)
		startSession(t, e, qs)

		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[0].ID, Answer: model.ChoiceA})
		e.Dispatch(ctx, ToggleFlag{QuestionID: qs[0].ID})

		ans := e.Session().Answers[qs[0].ID]
		if !ans.IsFlagged || ans.SelectedAnswer == nil || *ans.SelectedAnswer != model.ChoiceA {
			t.Error("flagging must not disturb the selection")
		}
		if out.lastCorrect == nil || !*out.lastCorrect {
			t.Error("flag sync on an answered question carries correctness")
		}
	})
}

func TestPauseResumeTick(t *testing.T) {
	ctx := context.Background()

	t.Run("TickAdvancesClock", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		qs := testQuestions(2)
		startSession(t, e, qs)

		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[0].ID, Answer: model.ChoiceA})
		e.Dispatch(ctx, TickTimer{})
		e.Dispatch(ctx, TickTimer{})

		s := e.Session()
		if s.SessionTime != 2 {
			t.Errorf("session time = %d, want 2", s.SessionTime)
		}
		if s.Answers[qs[0].ID].TimeSpent != 2 {
			t.Errorf("question time = %d, want 2", s.Answers[qs[0].ID].TimeSpent)
		}
	})

	t.Run("TickWhilePausedIsNoOp", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		startSession(t, e, testQuestions(2))

		e.Dispatch(ctx, PauseSession{})
		e.Dispatch(ctx, TickTimer{})

		if e.Session().SessionTime != 0 {
			t.Error("paused session clock must not advance")
		}
		if e.ShouldTick() {
			t.Error("scheduler must not tick a paused session")
		}
	})

	t.Run("PauseAndResumeIdempotent", func(t *testing.T) {
		e, _, store := newTestEngine(t)
		startSession(t, e, testQuestions(2))
		base := store.saves

		e.Dispatch(ctx, PauseSession{})
		e.Dispatch(ctx, PauseSession{})
		e.Dispatch(ctx, ResumeSession{})
		e.Dispatch(ctx, ResumeSession{})

		if e.Session().IsPaused {
			t.Error("session must end up resumed")
		}
		if store.saves != base+2 {
			t.Errorf("snapshot writes = %d, want %d (redundant pause/resume are no-ops)", store.saves-base, 2)
		}
	})
}

func TestCompleteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("ScoresAnsweredOnly", func(t *testing.T) {
		e, out, store := newTestEngine(t)
		qs := testQuestions(4)
		startSession(t, e, qs)

		// Two answered, one correct. Unanswered questions do not count.
		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[0].ID, Answer: model.ChoiceA})
		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[1].ID, Answer: model.ChoiceB})
		e.Dispatch(ctx, CompleteSession{})

		s := e.Session()
		if !s.IsCompleted {
			t.Fatal("session must be completed")
		}
		if s.Score == nil || *s.Score != 50 {
			t.Errorf("score = %v, want 50", s.Score)
		}
		if s.EndTime == nil {
			t.Error("end time must be frozen")
		}
		if out.completed != 1 {
			t.Errorf("completion events = %d, want 1", out.completed)
		}
		if store.saved != nil {
			t.Error("local snapshot slot must be cleared on completion")
		}
	})

	t.Run("NothingAnsweredScoresZero", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		startSession(t, e, testQuestions(3))

		e.Dispatch(ctx, CompleteSession{})

		if s := e.Session(); s.Score == nil || *s.Score != 0 {
			t.Errorf("score = %v, want 0", s.Score)
		}
	})

	t.Run("CompleteWhilePausedResumes", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		startSession(t, e, testQuestions(2))

		e.Dispatch(ctx, PauseSession{})
		e.Dispatch(ctx, CompleteSession{})

		s := e.Session()
		if s.IsPaused {
			t.Error("paused and completed must never both be observable")
		}
		if !s.IsCompleted {
			t.Error("session must be completed")
		}
	})

	t.Run("TimerDeadAfterCompletion", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		startSession(t, e, testQuestions(2))

		e.Dispatch(ctx, TickTimer{})
		e.Dispatch(ctx, CompleteSession{})

		e.Dispatch(ctx, TickTimer{})
		e.Dispatch(ctx, PauseSession{})

		s := e.Session()
		if s.SessionTime != 1 {
			t.Errorf("session time = %d, want 1 (clock is frozen at completion)", s.SessionTime)
		}
		if s.IsPaused {
			t.Error("a completed session cannot be paused")
		}
		if e.ShouldTick() {
			t.Error("scheduler must not tick a completed session")
		}
	})

	t.Run("DoubleCompleteIsNoOp", func(t *testing.T) {
		e, out, _ := newTestEngine(t)
		startSession(t, e, testQuestions(2))

		e.Dispatch(ctx, CompleteSession{})
		e.Dispatch(ctx, CompleteSession{})

		if out.completed != 1 {
			t.Errorf("completion events = %d, want 1", out.completed)
		}
	})
}

func TestAbandonSession(t *testing.T) {
	ctx := context.Background()

	e, out, store := newTestEngine(t)
	startSession(t, e, testQuestions(2))
	e.Dispatch(ctx, AbandonSession{})

	if e.Session() != nil {
		t.Error("abandon must drop the live session")
	}
	if store.saved != nil {
		t.Error("abandon must clear the snapshot slot")
	}
	if out.completed != 0 {
		t.Error("abandon must not emit completion")
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		e, _, store := newTestEngine(t)
		qs := testQuestions(3)
		startSession(t, e, qs)
		e.Dispatch(ctx, AnswerQuestion{QuestionID: qs[1].ID, Answer: model.ChoiceC})
		e.Dispatch(ctx, GoToQuestion{Index: 2})

		// Simulate a reconnect: a fresh engine over the same store.
		e2 := New(e.userID, &recordingOutbox{}, store, zerolog.Nop())
		if !e2.Restore(ctx) {
			t.Fatal("restore must succeed with a saved snapshot")
		}

		s := e2.Session()
		if s.CurrentQuestion != 2 {
			t.Errorf("current question = %d, want 2", s.CurrentQuestion)
		}
		if s.Answers[qs[1].ID] == nil || *s.Answers[qs[1].ID].SelectedAnswer != model.ChoiceC {
			t.Error("answers must survive the round trip")
		}
	})

	t.Run("EmptySlot", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		if e.Restore(ctx) {
			t.Error("restore from an empty slot must report no session")
		}
	})

	t.Run("RepairsCorruptIndexes", func(t *testing.T) {
		_, _, store := newTestEngine(t)
		qs := testQuestions(2)
		store.saved = &model.PracticeSession{
			LocalID:         "ps-1",
			Questions:       qs,
			CurrentQuestion: 40,
			Answers: map[uuid.UUID]*model.UserAnswer{
				uuid.New(): {}, // orphan entry for a question not in the session
			},
		}

		e := New(uuid.New(), &recordingOutbox{}, store, zerolog.Nop())
		if !e.Restore(ctx) {
			t.Fatal("restore must succeed")
		}

		s := e.Session()
		if s.CurrentQuestion != 1 {
			t.Errorf("out-of-range index must clamp to %d, got %d", 1, s.CurrentQuestion)
		}
		if len(s.Answers) != 0 {
			t.Error("orphan answer entries must be pruned")
		}
	})

	t.Run("CompletedSnapshotIgnored", func(t *testing.T) {
		_, _, store := newTestEngine(t)
		store.saved = &model.PracticeSession{
			LocalID:     "ps-2",
			Questions:   testQuestions(1),
			IsCompleted: true,
		}

		e := New(uuid.New(), &recordingOutbox{}, store, zerolog.Nop())
		if e.Restore(ctx) {
			t.Error("completed snapshot must not be restored")
		}
	})
}

func TestAttachRemoteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("Attaches", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		startSession(t, e, testQuestions(2))
		localID := e.Session().LocalID
		remoteID := uuid.New()

		e.AttachRemoteSession(ctx, localID, remoteID)

		s := e.Session()
		if s.ServerSessionID == nil || *s.ServerSessionID != remoteID {
			t.Error("remote id must be attached to the matching session")
		}
	})

	t.Run("StaleLocalIDIgnored", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		startSession(t, e, testQuestions(2))

		e.AttachRemoteSession(ctx, "ps-stale", uuid.New())

		if e.Session().ServerSessionID != nil {
			t.Error("attach for a superseded session must be dropped")
		}
	})
}

func TestSessionReturnsCopy(t *testing.T) {
	e, _, _ := newTestEngine(t)
	qs := testQuestions(2)
	startSession(t, e, qs)

	s := e.Session()
	s.CurrentQuestion = 99
	s.Answers[qs[0].ID] = &model.UserAnswer{QuestionID: qs[0].ID}

	fresh := e.Session()
	if fresh.CurrentQuestion != 0 || len(fresh.Answers) != 0 {
		t.Error("mutating the returned copy must not affect engine state")
	}
}
