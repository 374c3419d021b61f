package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/types"
)

// SnapshotModel is one stored last-known-good value.
type SnapshotModel struct {
	Key     string    `gorm:"column:snapshot_key;primaryKey;size:512"`
	Value   []byte    `gorm:"column:value;not null"`
	SavedAt time.Time `gorm:"column:saved_at;index;not null"`
}

func (SnapshotModel) TableName() string {
	return "kairos_snapshots"
}

// SQLStore keeps snapshots in Postgres or SQLite through gorm.
type SQLStore struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLStore opens the database and migrates the snapshot table.
func NewSQLStore(cfg config.SQLConfig, logger *slog.Logger, now func() time.Time) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "snapshot-sql")

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN.Value())
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN.Value())
	default:
		return nil, fmt.Errorf("snapshot: unsupported sql driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(&gormWriter{logger: logger}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", cfg.Driver, err)
	}

	if cfg.Driver != "postgres" {
		// An in-memory SQLite database exists per connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewSQLStoreFromDB(db, logger, now)
}

// NewSQLStoreFromDB wraps an existing gorm handle.
func NewSQLStoreFromDB(db *gorm.DB, logger *slog.Logger, now func() time.Time) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if err := db.AutoMigrate(&SnapshotModel{}); err != nil {
		return nil, fmt.Errorf("snapshot: migrate: %w", err)
	}
	return &SQLStore{db: db, logger: logger, now: now}, nil
}

// Name returns the backend name.
func (s *SQLStore) Name() string { return BackendSQL }

// Save upserts the snapshot for key.
func (s *SQLStore) Save(ctx context.Context, key string, value []byte) error {
	row := SnapshotModel{Key: key, Value: value, SavedAt: s.now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "snapshot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "saved_at"}),
	}).Create(&row).Error
	if err != nil {
		return types.NewCacheError("Save", "snapshot", key, BackendSQL, err)
	}
	return nil
}

// Load returns the snapshot for key or ErrSnapshotMiss.
func (s *SQLStore) Load(ctx context.Context, key string) (types.Snapshot, error) {
	var row SnapshotModel
	err := s.db.WithContext(ctx).Where("snapshot_key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Snapshot{}, types.ErrSnapshotMiss
		}
		return types.Snapshot{}, types.NewCacheError("Load", "snapshot", key, BackendSQL, err)
	}
	return types.Snapshot{Value: row.Value, SavedAt: row.SavedAt}, nil
}

// Delete removes the snapshot for key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("snapshot_key = ?", key).Delete(&SnapshotModel{}).Error
	if err != nil {
		return types.NewCacheError("Delete", "snapshot", key, BackendSQL, err)
	}
	return nil
}

// PruneOlderThan deletes snapshots saved before now-age and returns the count.
func (s *SQLStore) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res := s.db.WithContext(ctx).Where("saved_at < ?", s.now().UTC().Add(-age)).Delete(&SnapshotModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Debug("Pruned stale snapshots", "deleted", res.RowsAffected, "max_age", age)
	}
	return res.RowsAffected, nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormWriter struct {
	logger *slog.Logger
}

func (w *gormWriter) Printf(format string, args ...any) {
	w.logger.Warn(fmt.Sprintf(format, args...))
}

var _ types.SnapshotStore = (*SQLStore)(nil)
