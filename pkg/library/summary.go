package library

import (
	"math"

	"gamelog/pkg/domain"
)

// Summary aggregates a player's whole log.
type Summary struct {
	Total     int     `json:"total"`
	Hours     int     `json:"hours"`
	AvgRating float64 `json:"avgRating"`
	Platinums int     `json:"platinums"`
}

// Summarize computes totals; the average is rounded to one decimal and is 0
// for an empty log.
func Summarize(games []domain.Game) Summary {
	var s Summary
	ratings := 0
	for _, g := range games {
		s.Total++
		s.Hours += g.HoursPlayed
		ratings += g.Rating
		if g.IsPlatinum {
			s.Platinums++
		}
	}
	if s.Total > 0 {
		s.AvgRating = math.Round(float64(ratings)/float64(s.Total)*10) / 10
	}
	return s
}
