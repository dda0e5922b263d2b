package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/config"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// GormStore persists raw events, pipeline errors and normalized events.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Open connects using cfg and migrates the schema when asked to.
func Open(cfg config.StoreConf) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("store pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := NewGormStore(db)
	if cfg.AutoMigrate {
		if err := s.Migrate(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates or updates the tables.
func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(&RawEventModel{}, &PipelineErrorModel{}, &NormalizedEventModel{}); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) InsertRawEvent(ctx context.Context, raw *event.RawEvent) error {
	if err := s.db.WithContext(ctx).Create(rawEventToModel(raw)).Error; err != nil {
		return fmt.Errorf("insert raw event %s: %w", raw.ID, err)
	}
	return nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, rawEventID string, status event.Status, reason string) error {
	res := s.db.WithContext(ctx).Model(&RawEventModel{}).
		Where("id = ?", rawEventID).
		Updates(map[string]interface{}{"status": string(status), "reason": reason})
	if res.Error != nil {
		return fmt.Errorf("update status of %s: %w", rawEventID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update status of %s: %w", rawEventID, ErrNotFound)
	}
	return nil
}

func (s *GormStore) InsertError(ctx context.Context, perr *event.PipelineError) error {
	m := &PipelineErrorModel{
		RawEventID: perr.RawEventID,
		Code:       string(perr.Code),
		Message:    perr.Message,
		Severity:   string(perr.Severity),
		Details:    perr.Details,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("insert pipeline error for %s: %w", perr.RawEventID, err)
	}
	return nil
}

func (s *GormStore) SaveNormalizedEvent(ctx context.Context, ev *event.NormalizedEvent) error {
	if err := s.db.WithContext(ctx).Create(normalizedToModel(ev)).Error; err != nil {
		return fmt.Errorf("save normalized event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *GormStore) CheckExternalDuplicate(ctx context.Context, fingerprint string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&NormalizedEventModel{}).
		Where("fingerprint = ?", fingerprint).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check fingerprint: %w", err)
	}
	return n > 0, nil
}

func (s *GormStore) GetRawEvent(ctx context.Context, id string) (*event.RawEvent, error) {
	var m RawEventModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get raw event %s: %w", id, err)
	}
	return m.toDomain(), nil
}

// GetNormalizedByRawEvent returns the normalized event produced from a raw
// event, if any.
func (s *GormStore) GetNormalizedByRawEvent(ctx context.Context, rawEventID string) (*event.NormalizedEvent, error) {
	var m NormalizedEventModel
	if err := s.db.WithContext(ctx).Where("raw_event_id = ?", rawEventID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get normalized event for %s: %w", rawEventID, err)
	}
	return m.toDomain(), nil
}

func (s *GormStore) ListErrors(ctx context.Context, rawEventID string) ([]*event.PipelineError, error) {
	var rows []PipelineErrorModel
	if err := s.db.WithContext(ctx).Where("raw_event_id = ?", rawEventID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list errors for %s: %w", rawEventID, err)
	}
	out := make([]*event.PipelineError, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// Filter narrows ListNormalizedEvents. Zero fields are ignored.
type Filter struct {
	WorkspaceID string
	Intent      event.Intent
	From, To    time.Time
	Limit       int
}

func (s *GormStore) ListNormalizedEvents(ctx context.Context, f Filter) ([]*event.NormalizedEvent, error) {
	q := s.db.WithContext(ctx).Model(&NormalizedEventModel{})
	if f.WorkspaceID != "" {
		q = q.Where("workspace_id = ?", f.WorkspaceID)
	}
	if f.Intent != "" {
		q = q.Where("intent = ?", string(f.Intent))
	}
	if !f.From.IsZero() {
		q = q.Where("date >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("date < ?", f.To)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var rows []NormalizedEventModel
	if err := q.Order("date DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list normalized events: %w", err)
	}
	out := make([]*event.NormalizedEvent, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}
