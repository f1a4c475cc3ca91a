// Package store persists parsed transactions in SQLite through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("transaction not found")

// SaveResult reports the outcome of Save.
type SaveResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Store wraps a gorm connection.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and migrates it.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db)
}

// New migrates db and wraps it.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save stores a valid transaction. Failures are reported in the result.
func (s *Store) Save(ctx context.Context, tx models.Transaction) SaveResult {
	rec := s.prepare(tx)
	if errs := validate(rec); len(errs) > 0 {
		return SaveResult{Error: "validation failed: " + strings.Join(errs, ", ")}
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return SaveResult{Error: err.Error()}
	}
	return SaveResult{Success: true, ID: rec.ID}
}

func (s *Store) prepare(tx models.Transaction) Record {
	rec := Record{
		ID:              uuid.NewString(),
		Bank:            string(tx.Bank),
		Sender:          tx.Sender,
		TransactionType: Direction(tx.Type),
		Amount:          tx.Amount,
		Balance:         tx.Balance,
		AccountNumber:   tx.Account(),
		Description:     tx.Description,
		Content:         tx.RawContent,
		ParsedAt:        tx.ParsedAt.UTC(),
		OriginalSender:  tx.OriginalSender,
		PhoneNumber:     tx.PhoneNumber,
		ReceivedAt:      s.now().UTC(),
	}
	if rec.Sender == "" {
		rec.Sender = tx.OriginalSender
	}
	if rec.Description == "" {
		rec.Description = "No description"
	}
	if rec.Content == "" {
		rec.Content = rec.Description
	}
	if tx.Timestamp != nil {
		t := tx.Timestamp.UTC()
		rec.TransactionTime = &t
	}
	if tx.ReceivedAt != nil {
		rec.ReceivedAt = tx.ReceivedAt.UTC()
	}
	return rec
}

func validate(r Record) []string {
	var errs []string
	if r.Bank == "" || r.Bank == string(models.BankUnknown) {
		errs = append(errs, "bank is required")
	}
	if r.Sender == "" {
		errs = append(errs, "sender is required")
	}
	if r.TransactionType != DirectionIncoming && r.TransactionType != DirectionOutgoing {
		errs = append(errs, `transaction type must be "incoming" or "outgoing"`)
	}
	if r.Amount < 0 {
		errs = append(errs, "amount must not be negative")
	}
	return errs
}

// Get returns one record by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// History lists records newest first.
func (s *Store) History(ctx context.Context, f Filter) ([]Record, error) {
	q := s.db.WithContext(ctx).Model(&Record{}).Order("received_at DESC")
	if f.Bank != "" {
		q = q.Where("bank = ?", f.Bank)
	}
	if f.Direction != "" {
		q = q.Where("transaction_type = ?", f.Direction)
	}
	if !f.From.IsZero() {
		q = q.Where("transaction_time >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("transaction_time <= ?", f.To.UTC())
	}

	var recs []Record
	err := q.Limit(clampLimit(f.Limit)).Offset(f.Offset).Find(&recs).Error
	return recs, err
}

// ByBank lists the latest records of one bank.
func (s *Store) ByBank(ctx context.Context, bank string, limit int) ([]Record, error) {
	return s.History(ctx, Filter{Bank: bank, Limit: limit})
}

// Recent lists the latest records of all banks.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.History(ctx, Filter{Limit: limit})
}

// Search matches term against description, content and sender.
func (s *Store) Search(ctx context.Context, term string, limit int) ([]Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	like := "%" + term + "%"
	var recs []Record
	err := s.db.WithContext(ctx).
		Where("description LIKE ? OR content LIKE ? OR sender LIKE ?", like, like, like).
		Order("received_at DESC").
		Limit(clampLimit(limit)).
		Find(&recs).Error
	return recs, err
}

// Stats summarises the last days of received transactions.
func (s *Store) Stats(ctx context.Context, days int) (Stats, error) {
	if days <= 0 {
		days = 30
	}
	to := s.now().UTC()
	from := to.AddDate(0, 0, -days)
	st := Stats{PeriodDays: days, From: from, To: to, Banks: []string{}}

	var rows []struct {
		TransactionType string
		Count           int64
		Total           int64
	}
	err := s.db.WithContext(ctx).Model(&Record{}).
		Select("transaction_type, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("received_at >= ?", from).
		Group("transaction_type").
		Scan(&rows).Error
	if err != nil {
		return st, err
	}
	for _, r := range rows {
		st.TotalTransactions += r.Count
		switch r.TransactionType {
		case DirectionIncoming:
			st.IncomingCount = r.Count
			st.TotalIncoming = r.Total
		case DirectionOutgoing:
			st.OutgoingCount = r.Count
			st.TotalOutgoing = r.Total
		}
	}
	st.NetAmount = st.TotalIncoming - st.TotalOutgoing

	err = s.db.WithContext(ctx).Model(&Record{}).
		Where("received_at >= ?", from).
		Distinct("bank").
		Order("bank").
		Pluck("bank", &st.Banks).Error
	return st, err
}

// LatestBalances returns the most recent balance reported by each bank.
func (s *Store) LatestBalances(ctx context.Context) ([]BankBalance, error) {
	var banks []string
	if err := s.db.WithContext(ctx).Model(&Record{}).Distinct("bank").Order("bank").Pluck("bank", &banks).Error; err != nil {
		return nil, err
	}

	out := make([]BankBalance, 0, len(banks))
	for _, bank := range banks {
		var rec Record
		err := s.db.WithContext(ctx).
			Where("bank = ?", bank).
			Order("received_at DESC").
			First(&rec).Error
		if err != nil {
			return nil, err
		}
		out = append(out, BankBalance{Bank: bank, Balance: rec.Balance, UpdatedAt: rec.ReceivedAt})
	}
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
