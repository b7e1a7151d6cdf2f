package quiz

import "errors"

var (
	ErrQuizNotFound = errors.New("quiz not found")

	// Authoring-time validation failures. Rejected before any state mutation.
	ErrNoQuestions        = errors.New("quiz must have at least one question")
	ErrTooFewAnswers      = errors.New("question must have at least two answers")
	ErrTooManyAnswers     = errors.New("question may have at most four answers")
	ErrCorrectAnswerCount = errors.New("question must have exactly one correct answer")
	ErrInvalidDuration    = errors.New("publication duration must be greater than zero")

	// Attempt-time inconsistencies. The attempt is left in its prior state.
	ErrSessionNotFound     = errors.New("no quiz session initialized")
	ErrQuestionNotInQuiz   = errors.New("question does not belong to quiz")
	ErrAnswerNotInQuestion = errors.New("answer does not belong to question")

	// ErrAlreadySolved means a result already exists for the (quiz, user)
	// pair. Raised up front by CanUserSolveQuiz and again by the storage
	// unique constraint if two finalizations race.
	ErrAlreadySolved = errors.New("user already solved this quiz")

	ErrResultNotFound = errors.New("quiz result not found")
)

// IsValidationError reports whether err is an authoring-time validation
// failure as opposed to an attempt-time one.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNoQuestions) ||
		errors.Is(err, ErrTooFewAnswers) ||
		errors.Is(err, ErrTooManyAnswers) ||
		errors.Is(err, ErrCorrectAnswerCount) ||
		errors.Is(err, ErrInvalidDuration)
}
