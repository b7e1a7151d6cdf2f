package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PostgresStore implements QuizStore and ResultStore on a plain *sql.DB.
// Quiz/question/answer rows are owned by the admin CRUD layer; this store
// only reads them, plus writes the publication flag and finished results.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetQuiz(ctx context.Context, quizID int64) (*Quiz, error) {
	q := &Quiz{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, COALESCE(time_limit_minutes, 0), is_published
		FROM quizzes
		WHERE id = $1
	`, quizID).Scan(&q.ID, &q.Title, &q.Description, &q.TimeLimitMinutes, &q.IsPublished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	if err := s.loadQuestions(ctx, q); err != nil {
		return nil, err
	}

	q.buildIndexes()
	return q, nil
}

func (s *PostgresStore) loadQuestions(ctx context.Context, q *Quiz) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, points, position
		FROM questions
		WHERE quiz_id = $1
		ORDER BY position, id
	`, q.ID)
	if err != nil {
		return fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]int)
	for rows.Next() {
		var question Question
		if err := rows.Scan(&question.ID, &question.Content, &question.Points, &question.Position); err != nil {
			return fmt.Errorf("scan question: %w", err)
		}
		byID[question.ID] = len(q.Questions)
		q.Questions = append(q.Questions, question)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate questions: %w", err)
	}
	if len(q.Questions) == 0 {
		return nil
	}

	answerRows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.question_id, a.content, a.is_correct, a.position
		FROM answers a
		JOIN questions qs ON qs.id = a.question_id
		WHERE qs.quiz_id = $1
		ORDER BY a.question_id, a.position, a.id
	`, q.ID)
	if err != nil {
		return fmt.Errorf("query answers: %w", err)
	}
	defer answerRows.Close()

	for answerRows.Next() {
		var (
			answer     Answer
			questionID int64
		)
		if err := answerRows.Scan(&answer.ID, &questionID, &answer.Content, &answer.IsCorrect, &answer.Position); err != nil {
			return fmt.Errorf("scan answer: %w", err)
		}
		if i, ok := byID[questionID]; ok {
			q.Questions[i].Answers = append(q.Questions[i].Answers, answer)
		}
	}
	if err := answerRows.Err(); err != nil {
		return fmt.Errorf("iterate answers: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPublishedIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM quizzes
		WHERE is_published = TRUE
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query published quizzes: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan quiz id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) SetPublished(ctx context.Context, quizID int64, published bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE quizzes
		SET is_published = $2,
			updated_at = now()
		WHERE id = $1
	`, quizID, published)
	if err != nil {
		return fmt.Errorf("update publication flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuizNotFound
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, result *Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save result tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO quiz_results (
			quiz_id,
			user_id,
			attempt_id,
			score,
			correct_answers,
			started_at,
			completed_at,
			expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, result.QuizID, result.UserID, result.AttemptID, result.Score,
		result.CorrectAnswers, result.StartedAt, result.CompletedAt, result.ExpiresAt,
	).Scan(&result.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadySolved
		}
		return fmt.Errorf("insert quiz result: %w", err)
	}

	for i := range result.Answers {
		ua := &result.Answers[i]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_answers (
				result_id,
				question_id,
				answer_id,
				is_correct,
				answered_at
			) VALUES ($1, $2, $3, $4, $5)
		`, result.ID, ua.QuestionID, ua.AnswerID, ua.IsCorrect, ua.AnsweredAt); err != nil {
			return fmt.Errorf("insert user answer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save result: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindResult(ctx context.Context, quizID, userID int64) (*Result, error) {
	result := &Result{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, quiz_id, user_id, attempt_id, score, correct_answers,
			started_at, completed_at, expires_at
		FROM quiz_results
		WHERE quiz_id = $1 AND user_id = $2
	`, quizID, userID).Scan(
		&result.ID,
		&result.QuizID,
		&result.UserID,
		&result.AttemptID,
		&result.Score,
		&result.CorrectAnswers,
		&result.StartedAt,
		&result.CompletedAt,
		&result.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("load quiz result: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, answer_id, is_correct, answered_at
		FROM user_answers
		WHERE result_id = $1
		ORDER BY question_id
	`, result.ID)
	if err != nil {
		return nil, fmt.Errorf("query user answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ua UserAnswer
		if err := rows.Scan(&ua.QuestionID, &ua.AnswerID, &ua.IsCorrect, &ua.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan user answer: %w", err)
		}
		result.Answers = append(result.Answers, ua)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user answers: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) CountResults(ctx context.Context, quizID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM quiz_results
		WHERE quiz_id = $1
	`, quizID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count quiz results: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) GetRanking(ctx context.Context, quizID int64) ([]RankingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.user_id, COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
			r.score, r.completed_at
		FROM quiz_results r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.quiz_id = $1
		ORDER BY r.score DESC, r.completed_at ASC
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query ranking: %w", err)
	}
	defer rows.Close()

	var out []RankingRow
	for rows.Next() {
		var row RankingRow
		if err := rows.Scan(&row.UserID, &row.FirstName, &row.LastName, &row.Score, &row.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranking rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListMenu(ctx context.Context, userID int64) ([]MenuItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.title, r.id, r.score
		FROM quizzes q
		LEFT JOIN quiz_results r ON r.quiz_id = q.id AND r.user_id = $1
		WHERE q.is_published = TRUE OR r.id IS NOT NULL
		ORDER BY q.updated_at DESC, q.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query quiz menu: %w", err)
	}
	defer rows.Close()

	var items []MenuItem
	for rows.Next() {
		var (
			item     MenuItem
			resultID sql.NullInt64
			score    sql.NullFloat64
		)
		if err := rows.Scan(&item.QuizID, &item.Title, &resultID, &score); err != nil {
			return nil, fmt.Errorf("scan menu row: %w", err)
		}
		if resultID.Valid {
			item.Completed = true
			item.ResultID = &resultID.Int64
		}
		if score.Valid {
			item.Score = &score.Float64
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu rows: %w", err)
	}
	return items, nil
}
