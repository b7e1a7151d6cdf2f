package quiz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/google/uuid"

	"quizportal/internal/session"
)

// Runner drives one solving attempt: it initializes the shuffled order,
// serves questions, records submitted answers, and finalizes into a
// persisted result. All per-attempt state lives in the session store and is
// deleted only after the result is safely persisted.
type Runner struct {
	sessions session.Store
	results  ResultStore
	clock    Clock
}

func NewRunner(sessions session.Store, results ResultStore, clock Clock) *Runner {
	if clock == nil {
		clock = SystemClock()
	}
	return &Runner{sessions: sessions, results: results, clock: clock}
}

// NextQuestion is the outcome of requesting one question of an attempt.
// Done and Expired are terminal transitions, not errors: the caller must
// route either one to Finalize.
type NextQuestion struct {
	Question *Question `json:"question,omitempty"`
	Index    int       `json:"index"`
	Total    int       `json:"total"`
	Done     bool      `json:"done"`
	Expired  bool      `json:"expired"`
}

// InitializeSession creates the attempt state for (quiz, user) and returns
// it. Idempotent: an existing attempt is returned unchanged, with the same
// shuffled order. Starting is refused when the quiz has no questions or the
// user already has a persisted result.
func (r *Runner) InitializeSession(ctx context.Context, q *Quiz, userID int64) (*session.State, error) {
	if len(q.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	key := session.Key{QuizID: q.ID, UserID: userID}
	state, err := r.sessions.Get(ctx, key)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, err
	}

	if _, err := r.results.FindResult(ctx, q.ID, userID); err == nil {
		return nil, ErrAlreadySolved
	} else if !errors.Is(err, ErrResultNotFound) {
		return nil, err
	}

	state = &session.State{
		AttemptID:     uuid.NewString(),
		QuestionOrder: shuffledQuestionIDs(q),
		AnswerOrder:   shuffledAnswerIDs(q),
		Submitted:     make(map[int64]int64),
	}
	if err := r.sessions.Put(ctx, key, state); err != nil {
		return nil, err
	}

	log.Printf("[Runner] attempt %s started: quiz #%d, user #%d, %d questions",
		state.AttemptID, q.ID, userID, len(state.QuestionOrder))
	return state, nil
}

// NextQuestion returns the question at the given shuffled position, with its
// answers in the stored shuffled order. The attempt clock starts on the
// first fetch. The time limit is checked once per fetch against a fresh
// clock reading; there is no background timer.
func (r *Runner) NextQuestion(ctx context.Context, q *Quiz, userID int64, index int) (*NextQuestion, error) {
	key := session.Key{QuizID: q.ID, UserID: userID}
	state, err := r.sessions.Get(ctx, key)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	total := len(state.QuestionOrder)
	if index < 0 {
		index = 0
	}
	if index >= total {
		return &NextQuestion{Index: index, Total: total, Done: true}, nil
	}

	if !state.Started() {
		state.StartedAt = r.clock.Now()
		if err := r.sessions.Put(ctx, key, state); err != nil {
			return nil, err
		}
	} else if r.exceeded(q, state) {
		return &NextQuestion{Index: index, Total: total, Expired: true}, nil
	}

	question := q.Question(state.QuestionOrder[index])
	if question == nil {
		return nil, fmt.Errorf("session question %d: %w", state.QuestionOrder[index], ErrQuestionNotInQuiz)
	}

	return &NextQuestion{
		Question: reorderAnswers(question, state.AnswerOrder[question.ID]),
		Index:    index,
		Total:    total,
	}, nil
}

// SubmitAnswer records one answer into the attempt state. It does not
// advance any index; navigation is caller-driven. A second submission for
// the same question overwrites the first.
func (r *Runner) SubmitAnswer(ctx context.Context, q *Quiz, userID, questionID, answerID int64) error {
	question := q.Question(questionID)
	if question == nil {
		return fmt.Errorf("question %d: %w", questionID, ErrQuestionNotInQuiz)
	}
	if question.Answer(answerID) == nil {
		return fmt.Errorf("question %d, answer %d: %w", questionID, answerID, ErrAnswerNotInQuestion)
	}

	key := session.Key{QuizID: q.ID, UserID: userID}
	state, err := r.sessions.Get(ctx, key)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	if state.Submitted == nil {
		state.Submitted = make(map[int64]int64)
	}
	state.Submitted[questionID] = answerID
	return r.sessions.Put(ctx, key, state)
}

// TimeLimitExceeded reports whether the attempt's wall-clock budget is used
// up. An attempt that has not served its first question yet cannot be
// expired.
func (r *Runner) TimeLimitExceeded(ctx context.Context, q *Quiz, userID int64) (bool, error) {
	state, err := r.sessions.Get(ctx, session.Key{QuizID: q.ID, UserID: userID})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return r.exceeded(q, state), nil
}

// Finalize scores the submitted answers, persists the result, and then
// deletes the attempt state. Session state is cleared only after the persist
// is confirmed. A concurrent finalize that lost the storage race gets
// ErrAlreadySolved and its stale state is cleaned up.
func (r *Runner) Finalize(ctx context.Context, q *Quiz, userID int64) (*Result, error) {
	key := session.Key{QuizID: q.ID, UserID: userID}
	state, err := r.sessions.Get(ctx, key)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	completedAt := r.clock.Now()
	startedAt := state.StartedAt
	if startedAt.IsZero() {
		startedAt = completedAt
	}

	scored, err := Score(q, state.Submitted, completedAt)
	if err != nil {
		return nil, err
	}

	result := &Result{
		QuizID:         q.ID,
		UserID:         userID,
		AttemptID:      state.AttemptID,
		Score:          scored.Score,
		CorrectAnswers: scored.CorrectAnswers,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		ExpiresAt:      completedAt.Add(q.TimeLimit()),
		Answers:        scored.Answers,
	}

	if err := r.results.SaveResult(ctx, result); err != nil {
		if errors.Is(err, ErrAlreadySolved) {
			if delErr := r.sessions.Delete(ctx, key); delErr != nil {
				log.Printf("[Runner] attempt %s: cleanup after solved conflict failed: %v", state.AttemptID, delErr)
			}
		}
		return nil, err
	}

	if err := r.sessions.Delete(ctx, key); err != nil {
		// The score is safe; only the ephemeral state lingers until its TTL.
		log.Printf("[Runner] attempt %s: session cleanup failed: %v", state.AttemptID, err)
	}

	log.Printf("[Runner] attempt %s finalized: quiz #%d, user #%d, score %.2f (%d correct)",
		result.AttemptID, q.ID, userID, result.Score, result.CorrectAnswers)
	return result, nil
}

func (r *Runner) exceeded(q *Quiz, state *session.State) bool {
	if !state.Started() {
		return false
	}
	return r.clock.Now().Sub(state.StartedAt) >= q.TimeLimit()
}

func shuffledQuestionIDs(q *Quiz) []int64 {
	ids := make([]int64, len(q.Questions))
	for i := range q.Questions {
		ids[i] = q.Questions[i].ID
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

func shuffledAnswerIDs(q *Quiz) map[int64][]int64 {
	orders := make(map[int64][]int64, len(q.Questions))
	for i := range q.Questions {
		question := &q.Questions[i]
		ids := make([]int64, len(question.Answers))
		for j := range question.Answers {
			ids[j] = question.Answers[j].ID
		}
		rand.Shuffle(len(ids), func(a, b int) { ids[a], ids[b] = ids[b], ids[a] })
		orders[question.ID] = ids
	}
	return orders
}

// reorderAnswers returns a copy of the question with answers in the stored
// per-attempt order. Ids missing from the order (authoring changed after the
// attempt began) keep their canonical position at the end.
func reorderAnswers(question *Question, order []int64) *Question {
	out := *question
	out.Answers = make([]Answer, 0, len(question.Answers))

	seen := make(map[int64]bool, len(order))
	for _, id := range order {
		if a := question.Answer(id); a != nil {
			out.Answers = append(out.Answers, *a)
			seen[id] = true
		}
	}
	for i := range question.Answers {
		if !seen[question.Answers[i].ID] {
			out.Answers = append(out.Answers, question.Answers[i])
		}
	}

	out.answerIndex = make(map[int64]int, len(out.Answers))
	for i := range out.Answers {
		out.answerIndex[out.Answers[i].ID] = i
	}
	return &out
}
