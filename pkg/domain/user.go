package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

// MainPlatform is the platform family a player declares on their profile.
type MainPlatform string

const (
	MainPC          MainPlatform = "PC"
	MainPlayStation MainPlatform = "PlayStation"
	MainXbox        MainPlatform = "Xbox"
	MainNintendo    MainPlatform = "Nintendo"
)

var mainPlatforms = []MainPlatform{MainPC, MainPlayStation, MainXbox, MainNintendo}

func MainPlatforms() []MainPlatform {
	out := make([]MainPlatform, len(mainPlatforms))
	copy(out, mainPlatforms)
	return out
}

func (p MainPlatform) Valid() bool {
	for _, v := range mainPlatforms {
		if v == p {
			return true
		}
	}
	return false
}

// Profile is free-form metadata attached to an account at sign-up.
type Profile struct {
	FullName     string       `json:"fullName,omitempty"`
	Gamertag     string       `json:"gamertag,omitempty"`
	MainPlatform MainPlatform `json:"mainPlatform,omitempty"`
}

const (
	MaxGamertagLength = 32
	MaxFullNameLength = 120
)

// Normalize trims the free-text fields in place.
func (p *Profile) Normalize() {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Gamertag = strings.TrimSpace(p.Gamertag)
}

// Validate checks lengths and the main platform. Empty fields are allowed;
// sign-up enforces the required ones.
func (p Profile) Validate() error {
	if utf8.RuneCountInString(p.Gamertag) > MaxGamertagLength {
		return invalid("gamertag", "must be at most %d characters", MaxGamertagLength)
	}
	if utf8.RuneCountInString(p.FullName) > MaxFullNameLength {
		return invalid("fullName", "must be at most %d characters", MaxFullNameLength)
	}
	if p.MainPlatform != "" && !p.MainPlatform.Valid() {
		return &ValidationError{Field: "mainPlatform", Message: fmt.Sprintf("unknown platform %q", p.MainPlatform)}
	}
	return nil
}

// DisplayTag returns the name shown in headers and exports.
func (p Profile) DisplayTag() string {
	if p.Gamertag != "" {
		return p.Gamertag
	}
	return p.FullName
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Status       UserStatus `json:"status"`
	Profile      Profile    `json:"profile"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// DisplayTag falls back to the email when the profile carries no name.
func (u User) DisplayTag() string {
	if tag := u.Profile.DisplayTag(); tag != "" {
		return tag
	}
	return u.Email
}
