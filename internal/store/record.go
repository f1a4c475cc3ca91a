package store

import (
	"time"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

// Direction values stored in transaction_type.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Record is one row of banking_transactions.
type Record struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Bank            string     `gorm:"index;not null" json:"bank"`
	Sender          string     `gorm:"not null" json:"sender"`
	TransactionType string     `gorm:"index;not null" json:"transactionType"`
	Amount          int64      `json:"amount"`
	Balance         int64      `json:"balance"`
	AccountNumber   string     `json:"accountNumber,omitempty"`
	Description     string     `json:"description"`
	Content         string     `json:"content"`
	TransactionTime *time.Time `gorm:"index" json:"transactionTime,omitempty"`
	ReceivedAt      time.Time  `gorm:"index" json:"receivedAt"`
	ParsedAt        time.Time  `json:"parsedAt"`
	OriginalSender  string     `json:"originalSender,omitempty"`
	PhoneNumber     string     `json:"phoneNumber,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func (Record) TableName() string { return "banking_transactions" }

// Direction maps a transaction type to its stored direction.
func Direction(t models.TransactionType) string {
	switch t {
	case models.TypeCredit:
		return DirectionIncoming
	case models.TypeDebit:
		return DirectionOutgoing
	default:
		return ""
	}
}

// Transaction converts the row back into a Transaction.
func (r Record) Transaction() models.Transaction {
	tx := models.Transaction{
		Bank:           models.Bank(r.Bank),
		Sender:         r.Sender,
		RawContent:     r.Content,
		Timestamp:      r.TransactionTime,
		Amount:         r.Amount,
		Type:           models.TypeUnknown,
		Balance:        r.Balance,
		Description:    r.Description,
		IsValid:        true,
		ParsedAt:       r.ParsedAt,
		OriginalSender: r.OriginalSender,
		PhoneNumber:    r.PhoneNumber,
	}
	switch r.TransactionType {
	case DirectionIncoming:
		tx.Type = models.TypeCredit
	case DirectionOutgoing:
		tx.Type = models.TypeDebit
	}
	if r.AccountNumber != "" {
		acct := r.AccountNumber
		tx.AccountNumber = &acct
	}
	received := r.ReceivedAt
	tx.ReceivedAt = &received
	return tx
}

// BankBalance is the latest known balance of one bank.
type BankBalance struct {
	Bank      string    `json:"bank"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stats summarises a period of transactions.
type Stats struct {
	TotalTransactions int64     `json:"totalTransactions"`
	IncomingCount     int64     `json:"incomingCount"`
	OutgoingCount     int64     `json:"outgoingCount"`
	TotalIncoming     int64     `json:"totalIncoming"`
	TotalOutgoing     int64     `json:"totalOutgoing"`
	NetAmount         int64     `json:"netAmount"`
	Banks             []string  `json:"banks"`
	PeriodDays        int       `json:"periodDays"`
	From              time.Time `json:"from"`
	To                time.Time `json:"to"`
}

// Filter narrows History.
type Filter struct {
	Bank      string
	Direction string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
