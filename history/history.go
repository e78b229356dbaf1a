// Package history persists a record of every test, profile and analyze run
// in a local SQLite database, using the pure Go glebarez/sqlite GORM driver.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Kind is the command that produced a run.
type Kind string

const (
	KindTest    Kind = "test"
	KindProfile Kind = "profile"
	KindAnalyze Kind = "analyze"
)

// Run maps to the "runs" table.
type Run struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Platform  string    `gorm:"not null;index:idx_runs_challenge" json:"platform"`
	Challenge string    `gorm:"not null;index:idx_runs_challenge" json:"challenge"`
	Language  string    `gorm:"not null" json:"language"`
	Kind      Kind      `gorm:"not null" json:"kind"`
	// Status is "ok" or the kind of the failure, e.g. "mismatch" or "build".
	Status string `gorm:"not null" json:"status"`
	Total  int    `json:"total"`
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
	// DurationMs is the average case duration for test runs, the mean
	// iteration duration for profile runs and zero for analyze runs.
	DurationMs   float64   `json:"durationMs"`
	PeakMemoryKB int64     `json:"peakMemoryKB"`
	Summary      string    `json:"summary"`
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
}

func (Run) TableName() string { return "runs" }

// Filter selects runs. Empty fields match everything.
type Filter struct {
	Platform  string
	Challenge string
	Language  string
	Kind      Kind
	// Limit caps the number of runs returned, newest first. Zero means DefaultLimit.
	Limit int
}

// DefaultLimit is the number of runs Recent returns when Filter.Limit is zero.
const DefaultLimit = 20

// Store is the SQLite-backed run history.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens or creates the database at path and migrates the schema.
func Open(path string, zlogger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if zlogger == nil {
		zlogger = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating history directory %s: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)

	gormLogger := logger.New(
		zapAdapter{zlogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if err := db.AutoMigrate(&Run{}); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("migrating history database: %w", err)
	}

	zlogger.Debug("history store opened", zap.String("path", path))
	return &Store{db: db, logger: zlogger}, nil
}

// Record stores run. A zero ID is replaced with a new one.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns the runs matching f, newest first.
func (s *Store) Recent(ctx context.Context, f Filter) ([]Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := s.db.WithContext(ctx).Model(&Run{})
	if f.Platform != "" {
		q = q.Where("platform = ?", f.Platform)
	}
	if f.Challenge != "" {
		q = q.Where("challenge = ?", f.Challenge)
	}
	if f.Language != "" {
		q = q.Where("language = ?", f.Language)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}

	var runs []Run
	if err := q.Order("created_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// zapAdapter wraps *zap.Logger for GORM's logger.Writer interface.
type zapAdapter struct {
	logger *zap.Logger
}

func (z zapAdapter) Printf(format string, args ...any) {
	z.logger.Warn(fmt.Sprintf(format, args...), zap.String("component", "gorm"))
}
