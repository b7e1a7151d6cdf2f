package quiz

import (
	"context"
	"time"
)

// QuizStore is read-only access to quiz definitions plus the single flag the
// solving core is allowed to flip: the publication bit.
type QuizStore interface {
	// GetQuiz loads a quiz with its full question/answer tree in canonical
	// order. Returns ErrQuizNotFound when no such quiz exists.
	GetQuiz(ctx context.Context, quizID int64) (*Quiz, error)
	// ListPublishedIDs returns the ids of all quizzes currently flagged
	// published in storage.
	ListPublishedIDs(ctx context.Context) ([]int64, error)
	// SetPublished persists the publication flag.
	SetPublished(ctx context.Context, quizID int64, published bool) error
}

// ResultStore persists finished attempts.
type ResultStore interface {
	// SaveResult writes the result and its answer records atomically.
	// Returns ErrAlreadySolved when a result already exists for the
	// (quiz, user) pair.
	SaveResult(ctx context.Context, result *Result) error
	// FindResult returns the result of one user on one quiz, or
	// ErrResultNotFound.
	FindResult(ctx context.Context, quizID, userID int64) (*Result, error)
	// CountResults returns how many results reference the quiz.
	CountResults(ctx context.Context, quizID int64) (int, error)
	// GetRanking returns all results of a quiz joined with solver names,
	// ordered by score desc, completedAt asc.
	GetRanking(ctx context.Context, quizID int64) ([]RankingRow, error)
	// ListMenu returns the menu rows for one user: every published quiz
	// plus every quiz the user already solved.
	ListMenu(ctx context.Context, userID int64) ([]MenuItem, error)
}

// ExpiryStore keeps the publication expiration marker of a quiz, outside the
// quiz row itself. A missing marker means the publication has no deadline.
type ExpiryStore interface {
	GetExpiry(ctx context.Context, quizID int64) (time.Time, bool, error)
	SetExpiry(ctx context.Context, quizID int64, at time.Time) error
	DeleteExpiry(ctx context.Context, quizID int64) error
}
