package quiz

import (
	"fmt"
	"math"
	"time"
)

// ScoreResult is the outcome of scoring one set of submitted answers.
type ScoreResult struct {
	Score          float64      `json:"score"`
	EarnedPoints   int          `json:"earned_points"`
	MaxPoints      int          `json:"max_points"`
	CorrectAnswers int          `json:"correct_answers"`
	Answers        []UserAnswer `json:"answers"`
}

// Score evaluates submitted answers against the quiz in canonical authoring
// order, so two attempts with different shuffles score identically.
// Unanswered questions count toward MaxPoints but produce no answer record.
// Submitted answer ids are re-checked against question ownership; a mismatch
// means a tampered submission and aborts scoring.
func Score(q *Quiz, submitted map[int64]int64, answeredAt time.Time) (ScoreResult, error) {
	res := ScoreResult{Answers: make([]UserAnswer, 0, len(submitted))}

	for i := range q.Questions {
		question := &q.Questions[i]
		res.MaxPoints += question.Points

		answerID, ok := submitted[question.ID]
		if !ok {
			continue
		}

		answer := question.Answer(answerID)
		if answer == nil {
			return ScoreResult{}, fmt.Errorf("question %d, answer %d: %w", question.ID, answerID, ErrAnswerNotInQuestion)
		}

		res.Answers = append(res.Answers, UserAnswer{
			QuestionID: question.ID,
			AnswerID:   answer.ID,
			IsCorrect:  answer.IsCorrect,
			AnsweredAt: answeredAt,
		})

		if answer.IsCorrect {
			res.CorrectAnswers++
			res.EarnedPoints += question.Points
		}
	}

	if res.MaxPoints > 0 {
		res.Score = round2(100 * float64(res.EarnedPoints) / float64(res.MaxPoints))
	}

	return res, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
