package quiz

import "fmt"

// Validate checks the authoring invariant a quiz must satisfy before it can
// be published: at least one question, each with two to four answers and
// exactly one of them marked correct. The solving core assumes this holds
// and never re-checks it mid-attempt.
func Validate(q *Quiz) error {
	if len(q.Questions) == 0 {
		return ErrNoQuestions
	}

	for i := range q.Questions {
		question := &q.Questions[i]
		if len(question.Answers) < 2 {
			return fmt.Errorf("question %d: %w", question.ID, ErrTooFewAnswers)
		}
		if len(question.Answers) > 4 {
			return fmt.Errorf("question %d: %w", question.ID, ErrTooManyAnswers)
		}
		correct := 0
		for j := range question.Answers {
			if question.Answers[j].IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("question %d: %w", question.ID, ErrCorrectAnswerCount)
		}
	}

	return nil
}
