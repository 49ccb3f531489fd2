package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendhub/core/types"
)

// Supported journal drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Record is one committed lending event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CallID     uuid.UUID `gorm:"type:uuid;index"`
	Operation  string    `gorm:"size:64;index"`
	Round      uint64    `gorm:"index"`
	Sequence   int       `gorm:"not null"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName pins the table name regardless of naming strategy.
func (Record) TableName() string { return "lending_events" }

// Entry groups the events committed by one call.
type Entry struct {
	Operation string
	Round     uint64
	Events    []*types.Event
}

// Journal persists committed events through gorm.
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the journal database and migrates the schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if strings.TrimSpace(dsn) == "" {
			return nil, errors.New("audit: postgres dsn required")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("audit: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("audit: database required")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Append stores every event of entry in one transaction and returns the call
// id shared by the records.
func (j *Journal) Append(ctx context.Context, entry Entry) (uuid.UUID, error) {
	if j == nil || j.db == nil {
		return uuid.Nil, errors.New("audit: journal not configured")
	}
	if len(entry.Events) == 0 {
		return uuid.Nil, nil
	}
	callID := uuid.New()
	now := j.now().UTC()
	records := make([]Record, 0, len(entry.Events))
	for i, evt := range entry.Events {
		if evt == nil {
			continue
		}
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return uuid.Nil, fmt.Errorf("audit: encode %s: %w", evt.Type, err)
		}
		records = append(records, Record{
			ID:         uuid.New(),
			CallID:     callID,
			Operation:  entry.Operation,
			Round:      entry.Round,
			Sequence:   i,
			Type:       evt.Type,
			Attributes: string(attrs),
			CreatedAt:  now,
		})
	}
	if len(records) == 0 {
		return uuid.Nil, nil
	}
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("audit: append: %w", err)
	}
	return callID, nil
}

// Query filters journal reads. Zero values match everything.
type Query struct {
	Type      string
	Operation string
	FromRound uint64
	Limit     int
}

// List returns matching events, oldest first.
func (j *Journal) List(ctx context.Context, q Query) ([]*types.Event, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("audit: journal not configured")
	}
	tx := j.db.WithContext(ctx).Model(&Record{})
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.Operation != "" {
		tx = tx.Where("operation = ?", q.Operation)
	}
	if q.FromRound > 0 {
		tx = tx.Where("round >= ?", q.FromRound)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var records []Record
	if err := tx.Order("created_at asc").Order("round asc").Order("sequence asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	out := make([]*types.Event, 0, len(records))
	for _, rec := range records {
		attrs := map[string]string{}
		if rec.Attributes != "" {
			if err := json.Unmarshal([]byte(rec.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("audit: decode %s: %w", rec.ID, err)
			}
		}
		out = append(out, &types.Event{Type: rec.Type, Attributes: attrs})
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
