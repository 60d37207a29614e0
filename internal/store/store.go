package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/multierr"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jrizzo9/multiplayer-arcade/internal/profile"
	"github.com/jrizzo9/multiplayer-arcade/internal/wins"
)

type ProfileRow struct {
	ID          string `gorm:"primaryKey"`
	DisplayName string `gorm:"not null"`
	Color       string
	Emoji       string
}

func (ProfileRow) TableName() string { return "profiles" }

type WinRow struct {
	ID        uint   `gorm:"primaryKey"`
	WinnerID  string `gorm:"index;not null"`
	GameType  string `gorm:"index;not null"`
	RoomID    string
	CreatedAt time.Time
}

func (WinRow) TableName() string { return "wins" }

// Store serves profile lookups straight from the pgx pool and writes win records
// through gorm on top of the same pool.
type Store struct {
	pool  *pgxpool.Pool
	sqlDB *sql.DB
	db    *gorm.DB
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open gorm: %w", err), closeAll(pool, sqlDB))
	}
	if err := db.WithContext(ctx).AutoMigrate(&ProfileRow{}, &WinRow{}); err != nil {
		return nil, multierr.Append(fmt.Errorf("migrate: %w", err), closeAll(pool, sqlDB))
	}
	return &Store{pool: pool, sqlDB: sqlDB, db: db}, nil
}

func (s *Store) Lookup(ctx context.Context, id string) (profile.Profile, error) {
	var p profile.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, coalesce(color, ''), coalesce(emoji, '') FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Color, &p.Emoji)
	if errors.Is(err, pgx.ErrNoRows) {
		return profile.Profile{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("lookup profile %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) RecordWin(ctx context.Context, w wins.Win) error {
	row := WinRow{WinnerID: w.WinnerID, GameType: w.GameType, RoomID: w.RoomID, CreatedAt: w.At}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert win: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return closeAll(s.pool, s.sqlDB)
}

func closeAll(pool *pgxpool.Pool, sqlDB *sql.DB) error {
	var err error
	if sqlDB != nil {
		err = multierr.Append(err, sqlDB.Close())
	}
	pool.Close()
	return err
}

var (
	_ profile.Lookup = (*Store)(nil)
	_ wins.Recorder  = (*Store)(nil)
)
