package quiz

import "time"

// DefaultTimeLimitMinutes is used when a quiz was authored without a time limit.
const DefaultTimeLimitMinutes = 30

type Answer struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"-"`
	Position  int    `json:"position"`
}

type Question struct {
	ID       int64    `json:"id"`
	Content  string   `json:"content"`
	Points   int      `json:"points"`
	Position int      `json:"position"`
	Answers  []Answer `json:"answers"`

	answerIndex map[int64]int
}

// Quiz is a read-only snapshot of a quiz with its full question/answer tree,
// in canonical authoring order. The solving core never mutates it.
type Quiz struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	IsPublished      bool       `json:"is_published"`
	Questions        []Question `json:"questions,omitempty"`

	questionIndex map[int64]int
}

// buildIndexes fills the id lookup maps. Stores call it once after loading;
// tests building quizzes by hand call it through NewQuiz.
func (q *Quiz) buildIndexes() {
	q.questionIndex = make(map[int64]int, len(q.Questions))
	for i := range q.Questions {
		question := &q.Questions[i]
		q.questionIndex[question.ID] = i
		question.answerIndex = make(map[int64]int, len(question.Answers))
		for j := range question.Answers {
			question.answerIndex[question.Answers[j].ID] = j
		}
	}
}

// NewQuiz indexes a hand-built quiz value for id lookups.
func NewQuiz(q Quiz) *Quiz {
	q.buildIndexes()
	return &q
}

// Question returns the question with the given id, or nil if the quiz does
// not own it.
func (q *Quiz) Question(questionID int64) *Question {
	i, ok := q.questionIndex[questionID]
	if !ok {
		return nil
	}
	return &q.Questions[i]
}

// Answer returns the answer with the given id, or nil if the question does
// not own it.
func (qq *Question) Answer(answerID int64) *Answer {
	i, ok := qq.answerIndex[answerID]
	if !ok {
		return nil
	}
	return &qq.Answers[i]
}

// TimeLimit returns the quiz time limit as a duration, falling back to the
// default when the quiz was saved without one.
func (q *Quiz) TimeLimit() time.Duration {
	minutes := q.TimeLimitMinutes
	if minutes <= 0 {
		minutes = DefaultTimeLimitMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// UserAnswer is one recorded answer inside a persisted result. Written once
// by Finalize, never updated.
type UserAnswer struct {
	QuestionID int64     `json:"question_id"`
	AnswerID   int64     `json:"answer_id"`
	IsCorrect  bool      `json:"is_correct"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Result is the persisted outcome of one attempt. At most one exists per
// (quiz, user) pair, enforced by a unique index.
type Result struct {
	ID             int64        `json:"id"`
	QuizID         int64        `json:"quiz_id"`
	UserID         int64        `json:"user_id"`
	AttemptID      string       `json:"attempt_id"`
	Score          float64      `json:"score"`
	CorrectAnswers int          `json:"correct_answers"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    time.Time    `json:"completed_at"`
	ExpiresAt      time.Time    `json:"expires_at"`
	Answers        []UserAnswer `json:"answers,omitempty"`
}

// RankingRow is one raw leaderboard row as loaded from storage, ordered by
// score desc, completedAt asc.
type RankingRow struct {
	UserID      int64
	FirstName   string
	LastName    string
	Score       float64
	CompletedAt time.Time
}

// RankingEntry is one display row of a leaderboard, with the name already
// masked according to the caller's privileges.
type RankingEntry struct {
	Position int     `json:"position"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// Ranking is the leaderboard of one quiz from the caller's point of view.
// CallerPosition and CallerScore are nil when the caller has no result.
type Ranking struct {
	Entries        []RankingEntry `json:"ranking"`
	CallerPosition *int           `json:"user_position"`
	CallerScore    *float64       `json:"user_score"`
}

// MenuItem summarizes one quiz for the solver's menu: published or already
// solved by the user, with the score when solved.
type MenuItem struct {
	QuizID    int64    `json:"quiz_id"`
	Title     string   `json:"title"`
	Completed bool     `json:"completed"`
	ResultID  *int64   `json:"quiz_result,omitempty"`
	Score     *float64 `json:"score,omitempty"`
}
