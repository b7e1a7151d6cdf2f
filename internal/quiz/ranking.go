package quiz

import (
	"context"
	"errors"
	"fmt"
)

// HiddenName replaces the display name of a solver whose profile is missing
// a first or last name.
const HiddenName = "Ukryte"

// callerMarker is appended to the caller's own leaderboard row.
const callerMarker = " (to ja)"

// RankingService builds leaderboards and answers the result-derived policy
// questions: may this user still solve the quiz, may the quiz be deleted.
type RankingService struct {
	results ResultStore
}

func NewRankingService(results ResultStore) *RankingService {
	return &RankingService{results: results}
}

// GetRanking returns the leaderboard of a quiz from one caller's point of
// view. Rows come from storage already ordered by score desc, completedAt
// asc; positions are assigned in that order with no tie sharing. Names of
// other solvers are masked unless the caller is an admin; the caller's own
// row is always shown in full, with a marker.
func (s *RankingService) GetRanking(ctx context.Context, quizID, callerID int64, isAdmin bool) (*Ranking, error) {
	rows, err := s.results.GetRanking(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("ranking for quiz %d: %w", quizID, err)
	}

	ranking := &Ranking{Entries: make([]RankingEntry, 0, len(rows))}
	for i, row := range rows {
		position := i + 1
		entry := RankingEntry{
			Position: position,
			Name:     displayName(row, callerID, isAdmin),
			Score:    row.Score,
		}
		ranking.Entries = append(ranking.Entries, entry)

		if row.UserID == callerID {
			pos, score := position, row.Score
			ranking.CallerPosition = &pos
			ranking.CallerScore = &score
		}
	}
	return ranking, nil
}

// CanUserSolveQuiz reports whether the user still has an attempt available,
// which is the case until a result is persisted.
func (s *RankingService) CanUserSolveQuiz(ctx context.Context, quizID, userID int64) (bool, error) {
	_, err := s.results.FindResult(ctx, quizID, userID)
	if errors.Is(err, ErrResultNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// CanBeDeleted reports whether the quiz may be removed: it must be
// unpublished and no result may reference it.
func (s *RankingService) CanBeDeleted(ctx context.Context, q *Quiz) (bool, error) {
	if q.IsPublished {
		return false, nil
	}
	n, err := s.results.CountResults(ctx, q.ID)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func displayName(row RankingRow, callerID int64, isAdmin bool) string {
	if row.FirstName == "" || row.LastName == "" {
		if row.UserID == callerID {
			return HiddenName + callerMarker
		}
		return HiddenName
	}

	name := row.FirstName + " " + row.LastName
	if row.UserID == callerID {
		return name + callerMarker
	}
	if isAdmin {
		return name
	}
	return maskName(row.FirstName, "***") + " " + maskName(row.LastName, "*****")
}

func maskName(name, padding string) string {
	r := []rune(name)
	return string(r[0]) + padding
}
