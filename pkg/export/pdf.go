// Package export renders a games log as a printable PDF document.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"gamelog/pkg/domain"
	"gamelog/pkg/library"
)

// Document is everything a rendered export shows.
type Document struct {
	OwnerTag    string
	Games       []domain.Game
	GeneratedAt time.Time
	// Filter describes the view the games were taken from, if any.
	Filter string
}

// ContentType of Render output.
const ContentType = "application/pdf"

const (
	margin    = 15.0
	rowHeight = 7.0
	fontName  = "Helvetica"
)

type column struct {
	title string
	width float64
	align string
}

var columns = []column{
	{title: "Title", width: 70, align: "L"},
	{title: "Platform", width: 24, align: "L"},
	{title: "Completed", width: 26, align: "C"},
	{title: "Hours", width: 18, align: "R"},
	{title: "Rating", width: 18, align: "R"},
	{title: "Platinum", width: 24, align: "C"},
}

// Filename suggests a download name for a document generated at t.
func Filename(t time.Time) string {
	return "gamelog-" + t.UTC().Format("20060102-150405") + ".pdf"
}

// Render writes doc as an A4 PDF to w. The table header repeats on each page.
func Render(w io.Writer, doc Document) error {
	generated := doc.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.AliasNbPages("")
	pdf.SetTitle("GameLog", true)
	pdf.SetCreator("gamelog", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin + 3)
		pdf.SetFont(fontName, "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	writeSummary(pdf, tr, doc, generated)
	writeTableHeader(pdf)

	_, pageHeight := pdf.GetPageSize()
	limit := pageHeight - margin - rowHeight
	pdf.SetFont(fontName, "", 9)
	for i, g := range doc.Games {
		if pdf.GetY()+rowHeight > limit {
			pdf.AddPage()
			writeTableHeader(pdf)
			pdf.SetFont(fontName, "", 9)
		}
		fill := i%2 == 1
		pdf.SetFillColor(242, 242, 242)
		pdf.SetTextColor(0, 0, 0)
		cells := rowCells(g)
		for c, col := range columns {
			text := tr(cells[c])
			if c == 0 {
				text = fit(pdf, text, col.width-2)
			}
			pdf.CellFormat(col.width, rowHeight, text, "B", 0, col.align, fill, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(doc.Games) == 0 {
		pdf.SetFont(fontName, "I", 10)
		pdf.CellFormat(0, 10, "No games in this view.", "", 1, "C", false, 0, "")
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

func writeSummary(pdf *fpdf.Fpdf, tr func(string) string, doc Document, generated time.Time) {
	pdf.SetFont(fontName, "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, "Completed games", "", 1, "L", false, 0, "")

	s := library.Summarize(doc.Games)
	pdf.SetFont(fontName, "", 10)
	pdf.SetTextColor(80, 80, 80)
	if owner := strings.TrimSpace(doc.OwnerTag); owner != "" {
		pdf.CellFormat(0, 6, tr("Player: "+owner), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Games: %d    Hours played: %d    Average rating: %.1f    Platinums: %d",
		s.Total, s.Hours, s.AvgRating, s.Platinums), "", 1, "L", false, 0, "")
	if filter := strings.TrimSpace(doc.Filter); filter != "" {
		pdf.CellFormat(0, 6, tr("View: "+filter), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Generated: "+generated.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func writeTableHeader(pdf *fpdf.Fpdf) {
	pdf.SetFont(fontName, "B", 10)
	pdf.SetFillColor(40, 40, 40)
	pdf.SetTextColor(255, 255, 255)
	for _, col := range columns {
		pdf.CellFormat(col.width, rowHeight+1, col.title, "", 0, col.align, true, 0, "")
	}
	pdf.Ln(-1)
}

func rowCells(g domain.Game) []string {
	platinum := ""
	if g.IsPlatinum {
		platinum = "Yes"
	}
	return []string{
		g.Title,
		string(g.Platform),
		g.CompletionDate,
		strconv.Itoa(g.HoursPlayed),
		fmt.Sprintf("%d/10", g.Rating),
		platinum,
	}
}

// fit shortens s with an ellipsis until it fits width.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := strings.TrimSpace(string(runes)) + "..."
		if pdf.GetStringWidth(candidate) <= width {
			return candidate
		}
	}
	return "..."
}
