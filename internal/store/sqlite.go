package store

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/vesaa/speedtest2dynamodb/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLite stores measurements in a local SQLite database through GORM.
type SQLite struct {
	db     *gorm.DB
	table  string
	path   string
	logger zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path, table string, log zerolog.Logger) (*SQLite, error) {
	if table == "" {
		table = DefaultTableName
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &SQLite{
		db:     db,
		table:  table,
		path:   path,
		logger: log.With().Str("component", "sqlite").Str("table", table).Logger(),
	}, nil
}

// EnsureTable implements Store.
func (s *SQLite) EnsureTable(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).AutoMigrate(&models.Measurement{}); err != nil {
		return fmt.Errorf("auto-migrate %s: %w", s.table, err)
	}
	s.logger.Debug().Str("path", s.path).Msg("Table ready")
	return nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, m models.Measurement) error {
	if err := s.db.WithContext(ctx).Table(s.table).Create(&m).Error; err != nil {
		return fmt.Errorf("inserting record %s: %w", m.ID, err)
	}
	return nil
}

// Scan implements Store. Records come back oldest first.
func (s *SQLite) Scan(ctx context.Context) ([]models.Measurement, error) {
	var records []models.Measurement
	if err := s.db.WithContext(ctx).Table(s.table).Order("timestamp asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("scanning %s: %w", s.table, err)
	}
	return records, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
