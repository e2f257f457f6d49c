package export

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"

	"gamelog/pkg/domain"
)

func renderToReader(t *testing.T, doc Document) *pdf.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := Render(&buf, doc); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("output is not a pdf")
	}
	r, err := pdf.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read back pdf: %v", err)
	}
	return r
}

func TestRenderSinglePage(t *testing.T) {
	doc := Document{
		OwnerTag:    "Tarnished",
		GeneratedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Games: []domain.Game{
			{ID: "1", Title: "Elden Ring", Platform: domain.PlatformPS5, CompletionDate: "2024-02-20", Rating: 10, HoursPlayed: 120, IsPlatinum: true},
			{ID: "2", Title: "Celeste", Platform: domain.PlatformSwitch, CompletionDate: "2023-11-02", Rating: 9, HoursPlayed: 15},
		},
	}
	r := renderToReader(t, doc)
	if r.NumPage() != 1 {
		t.Fatalf("expected 1 page, got %d", r.NumPage())
	}
	text, err := r.Page(1).GetPlainText(nil)
	if err != nil {
		t.Fatalf("extract text: %v", err)
	}
	for _, want := range []string{"Completed games", "Elden Ring", "Celeste"} {
		if !strings.Contains(text, want) {
			t.Fatalf("page text missing %q", want)
		}
	}
}

func TestRenderPaginatesLongLogs(t *testing.T) {
	games := make([]domain.Game, 0, 90)
	for i := 0; i < 90; i++ {
		games = append(games, domain.Game{
			ID:             fmt.Sprintf("g%d", i),
			Title:          fmt.Sprintf("Game %02d with a rather long subtitle that will not fit in the column", i),
			Platform:       domain.PlatformPC,
			CompletionDate: "2024-01-01",
			Rating:         7,
			HoursPlayed:    i,
		})
	}
	r := renderToReader(t, Document{Games: games})
	if r.NumPage() < 3 {
		t.Fatalf("expected at least 3 pages, got %d", r.NumPage())
	}
}

func TestRenderEmptyLog(t *testing.T) {
	r := renderToReader(t, Document{})
	if r.NumPage() != 1 {
		t.Fatalf("expected 1 page, got %d", r.NumPage())
	}
}

func TestFilename(t *testing.T) {
	got := Filename(time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC))
	if got != "gamelog-20240301-090507.pdf" {
		t.Fatalf("unexpected filename %q", got)
	}
}
