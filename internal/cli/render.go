package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"gamelog/pkg/domain"
	"gamelog/pkg/library"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7a8599"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dce0e5"))
)

func writeHeader(w io.Writer, user domain.User) {
	fmt.Fprintln(w, titleStyle.Render(user.DisplayTag()+"'s games"))
}

func writeGames(w io.Writer, games []domain.Game) {
	if len(games) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No games in this view."))
		return
	}
	rows := make([][]string, 0, len(games))
	for _, g := range games {
		platinum := ""
		if g.IsPlatinum {
			platinum = "yes"
		}
		rows = append(rows, []string{
			g.ID,
			g.Title,
			string(g.Platform),
			g.CompletionDate,
			strconv.Itoa(g.HoursPlayed),
			fmt.Sprintf("%d/10", g.Rating),
			platinum,
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("ID", "Title", "Platform", "Finished", "Hours", "Rating", "Platinum").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

func writeSummary(w io.Writer, s library.Summary) {
	fmt.Fprintf(w, "%d games, %d hours, average rating %.1f, %d platinum\n", s.Total, s.Hours, s.AvgRating, s.Platinums)
}

func writeProfile(w io.Writer, user domain.User) {
	fmt.Fprintln(w, titleStyle.Render(user.DisplayTag()))
	fmt.Fprintf(w, "email:         %s\n", user.Email)
	if user.Profile.FullName != "" {
		fmt.Fprintf(w, "name:          %s\n", user.Profile.FullName)
	}
	fmt.Fprintf(w, "main platform: %s\n", user.Profile.MainPlatform)
}
