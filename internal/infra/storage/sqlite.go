package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"market_go/internal/domain"
)

// TransactionRow is the persisted form of a domain.TransactionRecord.
type TransactionRow struct {
	ID       string          `gorm:"primaryKey;size:26"`
	Viewer   string          `gorm:"index;size:36"`
	MarketID string          `gorm:"index"`
	Position int             `gorm:"not null"`
	Side     string          `gorm:"size:4"`
	Offer    string          `gorm:"not null"`
	Amount   int             `gorm:"not null"`
	Price    decimal.Decimal `gorm:"type:text"`
	Balance  decimal.Decimal `gorm:"type:text"`
	At       time.Time       `gorm:"index"`
}

// TableName pins the table name.
func (TransactionRow) TableName() string { return "transactions" }

// Storage is the SQLite transaction journal. It records completed trades only;
// market state is never persisted.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the journal at path. An empty path uses the
// per-user data directory.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		var err error
		if path, err = getDBPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&TransactionRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "MarketGo", "data", "journal.db"), nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Journal Operations
// ======================================================================================

// Record appends one completed transaction.
func (s *Storage) Record(ctx context.Context, rec domain.TransactionRecord) error {
	row := TransactionRow{
		ID:       rec.ID,
		Viewer:   rec.Viewer.String(),
		MarketID: rec.MarketID,
		Position: rec.Position,
		Side:     rec.Side,
		Offer:    rec.Offer,
		Amount:   rec.Amount,
		Price:    rec.Price,
		Balance:  rec.Balance,
		At:       rec.At.UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Get retrieves one transaction by id. A missing id returns (nil, nil).
func (s *Storage) Get(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	var row TransactionRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	rec := row.record()
	return &rec, nil
}

// Recent returns the newest transactions first. ULIDs sort by time.
func (s *Storage) Recent(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	var rows []TransactionRow
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return records(rows), nil
}

// ByViewer returns one viewer's transactions, newest first.
func (s *Storage) ByViewer(ctx context.Context, viewer domain.ViewerID, limit int) ([]domain.TransactionRecord, error) {
	var rows []TransactionRow
	err := s.db.WithContext(ctx).
		Where("viewer = ?", viewer.String()).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return records(rows), nil
}

// VolumeByMarket counts transactions per market.
func (s *Storage) VolumeByMarket(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		MarketID string
		Count    int64
	}
	err := s.db.WithContext(ctx).
		Model(&TransactionRow{}).
		Select("market_id, count(*) as count").
		Group("market_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.MarketID] = r.Count
	}
	return result, nil
}

func (r TransactionRow) record() domain.TransactionRecord {
	viewer, _ := uuid.Parse(r.Viewer)
	return domain.TransactionRecord{
		ID:       r.ID,
		Viewer:   viewer,
		MarketID: r.MarketID,
		Position: r.Position,
		Side:     r.Side,
		Offer:    r.Offer,
		Amount:   r.Amount,
		Price:    r.Price,
		Balance:  r.Balance,
		At:       r.At,
	}
}

func records(rows []TransactionRow) []domain.TransactionRecord {
	out := make([]domain.TransactionRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out
}
