package quiz

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportRankingExcel renders the leaderboard of a quiz as an xlsx workbook.
// Name masking follows the same rules as GetRanking, so a non-admin export
// never leaks full names.
func (s *RankingService) ExportRankingExcel(ctx context.Context, quizID, callerID int64, isAdmin bool) ([]byte, error) {
	ranking, err := s.GetRanking(ctx, quizID, callerID, isAdmin)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"position", "name", "score"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, entry := range ranking.Entries {
		row := i + 2
		values := []any{entry.Position, entry.Name, entry.Score}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "C", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
