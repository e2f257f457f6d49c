package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Platform is the closed set of platforms a game can be logged on.
type Platform string

const (
	PlatformPC     Platform = "PC"
	PlatformPS5    Platform = "PS5"
	PlatformXbox   Platform = "Xbox"
	PlatformSwitch Platform = "Switch"
	PlatformOther  Platform = "Other"
)

var platforms = []Platform{PlatformPC, PlatformPS5, PlatformXbox, PlatformSwitch, PlatformOther}

// Platforms lists every valid platform in display order.
func Platforms() []Platform {
	out := make([]Platform, len(platforms))
	copy(out, platforms)
	return out
}

func (p Platform) Valid() bool {
	for _, v := range platforms {
		if v == p {
			return true
		}
	}
	return false
}

// ParsePlatform matches case-insensitively and accepts "Outro" for Other.
func ParsePlatform(s string) (Platform, bool) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "outro") {
		return PlatformOther, true
	}
	for _, v := range platforms {
		if strings.EqualFold(string(v), s) {
			return v, true
		}
	}
	return "", false
}

const (
	// DateLayout is the wire and storage format of completion dates.
	DateLayout = "2006-01-02"

	MinRating       = 0
	MaxRating       = 10
	MaxTitleLength  = 200
	MaxReviewLength = 2000
	MaxHoursPlayed  = 100000
)

// Game is one completed-game record owned by a single user.
type Game struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	Title          string    `json:"title"`
	Platform       Platform  `json:"platform"`
	CompletionDate string    `json:"completionDate"`
	Rating         int       `json:"rating"`
	IsPlatinum     bool      `json:"isPlatinum"`
	HoursPlayed    int       `json:"hoursPlayed"`
	Review         string    `json:"review,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ValidationError reports a single invalid field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a validation failure of field.
func Invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Normalize trims text fields and maps platform aliases in place.
func (g *Game) Normalize() {
	g.Title = strings.TrimSpace(g.Title)
	g.Review = strings.TrimSpace(g.Review)
	g.CompletionDate = strings.TrimSpace(g.CompletionDate)
	if p, ok := ParsePlatform(string(g.Platform)); ok {
		g.Platform = p
	}
}

// Validate checks the user-editable fields. Ownership and ids are not checked.
func (g Game) Validate() error {
	if g.Title == "" {
		return invalid("title", "required")
	}
	if utf8.RuneCountInString(g.Title) > MaxTitleLength {
		return invalid("title", "must be at most %d characters", MaxTitleLength)
	}
	if !g.Platform.Valid() {
		return invalid("platform", "unknown platform %q", g.Platform)
	}
	if _, err := ParseDate(g.CompletionDate); err != nil {
		return invalid("completionDate", "expected YYYY-MM-DD")
	}
	if g.Rating < MinRating || g.Rating > MaxRating {
		return invalid("rating", "must be between %d and %d", MinRating, MaxRating)
	}
	if g.HoursPlayed < 0 {
		return invalid("hoursPlayed", "must not be negative")
	}
	if g.HoursPlayed > MaxHoursPlayed {
		return invalid("hoursPlayed", "must be at most %d", MaxHoursPlayed)
	}
	if utf8.RuneCountInString(g.Review) > MaxReviewLength {
		return invalid("review", "must be at most %d characters", MaxReviewLength)
	}
	return nil
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
