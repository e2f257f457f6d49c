package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"gamelog/pkg/domain"
)

const migrateLockID int64 = 47215510

const sqliteScheme = "sqlite:"

// GormStore implements Store using GORM on Postgres, or SQLite for
// DSNs prefixed with "sqlite:".
type GormStore struct {
	db       *gorm.DB
	postgres bool
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database dsn required")
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	dialector, isPostgres := openDialector(dsn)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if !isPostgres {
		// SQLite allows a single writer.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	s := &GormStore{db: db, postgres: isPostgres}
	if err := s.withMigrationLock(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &GameModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func openDialector(dsn string) (gorm.Dialector, bool) {
	if strings.HasPrefix(dsn, sqliteScheme) {
		return sqlite.Open(strings.TrimPrefix(dsn, sqliteScheme)), false
	}
	return postgres.Open(dsn), true
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) withMigrationLock(fn func(*gorm.DB) error) error {
	if !s.postgres {
		return fn(s.db)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(s.db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model, err := userToModel(u)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "status", "profile", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateGame inserts a new game row.
func (s *GormStore) CreateGame(g domain.Game) error {
	model := gameToModel(g)
	return s.db.Create(&model).Error
}

// UpdateGame overwrites the editable columns of an owned game.
func (s *GormStore) UpdateGame(g domain.Game) (bool, error) {
	res := s.db.Model(&GameModel{}).
		Where("id = ? AND owner_id = ?", g.ID, g.OwnerID).
		Updates(map[string]any{
			"title":           g.Title,
			"platform":        string(g.Platform),
			"completion_date": g.CompletionDate,
			"rating":          g.Rating,
			"is_platinum":     g.IsPlatinum,
			"hours_played":    g.HoursPlayed,
			"review":          g.Review,
			"updated_at":      g.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetGame returns one game of an owner.
func (s *GormStore) GetGame(ownerID, id string) (domain.Game, bool, error) {
	var model GameModel
	if err := s.db.First(&model, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Game{}, false, nil
		}
		return domain.Game{}, false, err
	}
	return gameFromModel(model), true, nil
}

// ListGamesByOwner returns an owner's games, most recently completed first.
func (s *GormStore) ListGamesByOwner(ownerID string) ([]domain.Game, error) {
	var models []GameModel
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("completion_date DESC").
		Order("created_at DESC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Game, 0, len(models))
	for _, m := range models {
		res = append(res, gameFromModel(m))
	}
	return res, nil
}

// DeleteGame removes an owned game.
func (s *GormStore) DeleteGame(ownerID, id string) (bool, error) {
	res := s.db.Delete(&GameModel{}, "id = ? AND owner_id = ?", id, ownerID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func userToModel(u domain.User) (UserModel, error) {
	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return UserModel{}, fmt.Errorf("encode profile: %w", err)
	}
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Status:       string(u.Status),
		Profile:      profile,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}, nil
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	var profile domain.Profile
	if len(m.Profile) > 0 {
		_ = json.Unmarshal(m.Profile, &profile)
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Status:       status,
		Profile:      profile,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func gameToModel(g domain.Game) GameModel {
	return GameModel{
		ID:             g.ID,
		OwnerID:        g.OwnerID,
		Title:          g.Title,
		Platform:       string(g.Platform),
		CompletionDate: g.CompletionDate,
		Rating:         g.Rating,
		IsPlatinum:     g.IsPlatinum,
		HoursPlayed:    g.HoursPlayed,
		Review:         g.Review,
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}
}

func gameFromModel(m GameModel) domain.Game {
	return domain.Game{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		Title:          m.Title,
		Platform:       domain.Platform(m.Platform),
		CompletionDate: m.CompletionDate,
		Rating:         m.Rating,
		IsPlatinum:     m.IsPlatinum,
		HoursPlayed:    m.HoursPlayed,
		Review:         m.Review,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
