package opslog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tickvault/internal/ops"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// operationModel is the persisted shape of a terminal operation.
type operationModel struct {
	ID         string         `gorm:"column:id;primaryKey"`
	Type       string         `gorm:"column:op_type;index"`
	Status     string         `gorm:"column:status;index"`
	Symbol     string         `gorm:"column:symbol;index"`
	Timeframe  string         `gorm:"column:timeframe"`
	Mode       string         `gorm:"column:mode"`
	Metadata   datatypes.JSON `gorm:"column:metadata_json;type:TEXT"`
	Result     datatypes.JSON `gorm:"column:result_json;type:TEXT"`
	Error      string         `gorm:"column:error"`
	Percentage float64        `gorm:"column:percentage"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
	StartedAt  time.Time      `gorm:"column:started_at"`
	EndedAt    time.Time      `gorm:"column:ended_at;index"`
}

func (operationModel) TableName() string { return "operations" }

// Store archives operations that reached a terminal state, so history
// survives restarts while the live registry stays in memory. Retention is a
// caller-driven policy, not enforced here.
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("opslog: database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&operationModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Archive persists one terminal operation. Upsert keyed by id keeps
// re-archival idempotent.
func (s *Store) Archive(ctx context.Context, op ops.Operation) error {
	if !ops.TerminalStatus(op.Status) {
		return fmt.Errorf("opslog: refusing to archive non-terminal operation %s (%s)", op.ID, op.Status)
	}
	meta, err := json.Marshal(op.Metadata)
	if err != nil {
		return err
	}
	model := operationModel{
		ID:         op.ID,
		Type:       op.Type,
		Status:     op.Status,
		Symbol:     op.Metadata.Symbol,
		Timeframe:  op.Metadata.Timeframe,
		Mode:       op.Metadata.Mode,
		Metadata:   datatypes.JSON(meta),
		Result:     datatypes.JSON(op.Result),
		Error:      op.Error,
		Percentage: op.Progress.Percentage,
		CreatedAt:  op.CreatedAt,
		StartedAt:  op.StartedAt,
		EndedAt:    op.EndedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
}

// Recent lists the newest archived operations, optionally filtered by type.
func (s *Store) Recent(ctx context.Context, opType string, limit int) ([]ops.Operation, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&operationModel{}).Order("ended_at DESC").Limit(limit)
	if opType != "" {
		q = q.Where("op_type = ?", opType)
	}
	var models []operationModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]ops.Operation, 0, len(models))
	for _, m := range models {
		op := ops.Operation{
			ID:        m.ID,
			Type:      m.Type,
			Status:    m.Status,
			Error:     m.Error,
			Result:    json.RawMessage(m.Result),
			CreatedAt: m.CreatedAt,
			StartedAt: m.StartedAt,
			EndedAt:   m.EndedAt,
		}
		if len(m.Metadata) > 0 {
			_ = json.Unmarshal(m.Metadata, &op.Metadata)
		}
		op.Progress.OperationID = m.ID
		op.Progress.Percentage = m.Percentage
		out = append(out, op)
	}
	return out, nil
}

// Prune deletes archived operations that ended before cutoff. Returns the
// number of rows removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("ended_at < ?", cutoff).Delete(&operationModel{})
	return res.RowsAffected, res.Error
}
