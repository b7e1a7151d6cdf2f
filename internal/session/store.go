// Package session holds the ephemeral per-attempt state of a quiz solver.
// State lives outside the process (Redis in production) and must not outlive
// one attempt: it is created on initialization and deleted on finalize.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no state exists under the key.
var ErrNotFound = errors.New("session state not found")

// Key addresses the attempt state of one user on one quiz.
type Key struct {
	QuizID int64
	UserID int64
}

// State is the full per-attempt record: the shuffled question order, the
// shuffled answer order of every question, the answers submitted so far, and
// the moment the first question was served. One typed record under one key,
// so an attempt cannot be left half-deleted.
type State struct {
	AttemptID     string            `json:"attempt_id"`
	QuestionOrder []int64           `json:"question_order"`
	AnswerOrder   map[int64][]int64 `json:"answer_order"`
	Submitted     map[int64]int64   `json:"submitted"`
	StartedAt     time.Time         `json:"started_at"`
}

// Started reports whether the first question has been served yet.
func (s *State) Started() bool {
	return !s.StartedAt.IsZero()
}

// Store persists attempt state. Implementations do not serialize concurrent
// writers for the same key; two tabs racing on one attempt is an accepted
// hazard of the single-attempt model.
type Store interface {
	Get(ctx context.Context, key Key) (*State, error)
	Put(ctx context.Context, key Key, state *State) error
	Delete(ctx context.Context, key Key) error
}
