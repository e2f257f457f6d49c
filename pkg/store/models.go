package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Status       string
	Profile      datatypes.JSON
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

// GameModel stores completion dates as YYYY-MM-DD text so ordering is
// identical on every supported driver.
type GameModel struct {
	ID             string    `gorm:"primaryKey"`
	OwnerID        string    `gorm:"not null;index:idx_games_owner_date,priority:1"`
	Title          string    `gorm:"not null"`
	Platform       string    `gorm:"size:16;not null"`
	CompletionDate string    `gorm:"size:10;not null;index:idx_games_owner_date,priority:2"`
	Rating         int       `gorm:"not null"`
	IsPlatinum     bool      `gorm:"not null;default:false"`
	HoursPlayed    int       `gorm:"not null"`
	Review         string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (GameModel) TableName() string { return "games" }
