package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"board_sync/internal/domain/game"
)

// Scoresheet renders finished games as printable PDF move lists.
type Scoresheet struct {
	dir string
}

func NewScoresheet(dir string) *Scoresheet {
	return &Scoresheet{dir: dir}
}

func (s *Scoresheet) Enabled() bool { return s.dir != "" }

// Write renders rec and returns the file path.
func (s *Scoresheet) Write(rec game.GameRecord) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	name := rec.GameID
	if name == "" {
		name = rec.SessionID
	}
	output := filepath.Join(s.dir, name+".pdf")

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Scoresheet "+name, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 10, "Game "+name)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	header := []string{
		"Played as: " + rec.LocalColor,
		"Started: " + rec.StartedAt.Format("2006-01-02 15:04"),
		"Status: " + rec.Status,
	}
	if rec.StartFEN != game.StartFEN {
		header = append(header, "Start FEN: "+rec.StartFEN)
	}
	for _, line := range header {
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Courier", "B", 10)
	pdf.CellFormat(15, 6, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "White", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Black", "1", 1, "C", false, 0, "")

	pdf.SetFont("Courier", "", 10)
	offset := 0
	if strings.Contains(rec.StartFEN, " b ") {
		offset = 1
	}
	moves := append(make([]string, offset), rec.Moves...)
	for i := 0; i < len(moves); i += 2 {
		white, black := moves[i], ""
		if white == "" {
			white = "..."
		}
		if i+1 < len(moves) {
			black = moves[i+1]
		}
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", i/2+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, white, "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, black, "1", 1, "C", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Courier", "", 8)
	pdf.MultiCell(0, 4.5, "Final: "+rec.FinalFEN, "", "L", false)

	return output, pdf.OutputFileAndClose(output)
}
