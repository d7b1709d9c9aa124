package store

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"main/internal/model"
	"main/pkg/exception"
)

// CommandRecord is the durable mirror row for one terminal command.
type CommandRecord struct {
	ID          string `gorm:"primaryKey"`
	Priority    string
	State       string
	Attempts    int
	SubmittedAt time.Time
	TerminalAt  time.Time
	LastErr     string
	Result      []byte
}

func (CommandRecord) TableName() string {
	return "terminal_commands"
}

// Store mirrors terminal command records into Postgres. The in-memory queue
// stays authoritative; this exists for post-hoc inspection and restart
// history only.
type Store struct {
	db *gorm.DB
}

// Open connects and migrates the mirror table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&CommandRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate terminal_commands")
	}
	return &Store{db: db}, nil
}

// SaveTerminal upserts one terminal command.
func (s *Store) SaveTerminal(ctx context.Context, status model.CommandStatus) error {
	rec := CommandRecord{
		ID:          status.ID,
		Priority:    status.Priority.String(),
		State:       status.State.String(),
		Attempts:    status.Attempts,
		SubmittedAt: status.SubmittedAt,
		TerminalAt:  status.TerminalAt,
		LastErr:     status.LastErr,
		Result:      status.Result,
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

// Recent returns the newest terminal records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]CommandRecord, error) {
	if s == nil || s.db == nil {
		return nil, exception.ErrStoreDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	var out []CommandRecord
	err := s.db.WithContext(ctx).
		Order("terminal_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
