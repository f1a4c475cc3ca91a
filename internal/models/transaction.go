package models

import (
	"encoding/json"
	"time"
)

// Bank identifies the issuer of an SMS message.
type Bank string

const (
	BankVietinBank  Bank = "vietinbank"
	BankVietcombank Bank = "vietcombank"
	BankUnknown     Bank = "unknown"
)

// DisplayName returns the label shown to users for the bank.
func (b Bank) DisplayName() string {
	switch b {
	case BankVietinBank:
		return "VietinBank"
	case BankVietcombank:
		return "Vietcombank"
	default:
		return "Unknown Bank"
	}
}

// TransactionType is the direction of money movement.
type TransactionType string

const (
	TypeCredit  TransactionType = "credit"
	TypeDebit   TransactionType = "debit"
	TypeUnknown TransactionType = "unknown"
)

// Transaction is a single bank SMS parsed into structured fields.
// Amount and Balance are whole VND.
type Transaction struct {
	Bank          Bank            `json:"bank"`
	Sender        string          `json:"sender"`
	RawContent    string          `json:"rawContent"`
	Timestamp     *time.Time      `json:"timestamp"`
	AccountNumber *string         `json:"accountNumber"`
	Amount        int64           `json:"transactionAmount"`
	Type          TransactionType `json:"transactionType"`
	Balance       int64           `json:"balance"`
	Description   string          `json:"description"`
	IsValid       bool            `json:"isValid"`
	Error         string          `json:"error,omitempty"`
	ParsedAt      time.Time       `json:"parsedAt"`

	// Set by the relay before a transaction is handed downstream.
	OriginalSender string     `json:"originalSender,omitempty"`
	PhoneNumber    string     `json:"phoneNumber,omitempty"`
	ReceivedAt     *time.Time `json:"receivedAt,omitempty"`
}

// MarshalJSON adds epoch-millisecond copies of the time fields next to
// their RFC 3339 forms.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	return json.Marshal(struct {
		plain
		TimestampMillis  *int64 `json:"timestampMillis"`
		ParsedAtMillis   int64  `json:"parsedAtMillis"`
		ReceivedAtMillis *int64 `json:"receivedAtMillis,omitempty"`
	}{
		plain:            plain(t),
		TimestampMillis:  millis(t.Timestamp),
		ParsedAtMillis:   t.ParsedAt.UnixMilli(),
		ReceivedAtMillis: millis(t.ReceivedAt),
	})
}

func millis(ts *time.Time) *int64 {
	if ts == nil {
		return nil
	}
	ms := ts.UnixMilli()
	return &ms
}

// Account returns the account number or an empty string.
func (t Transaction) Account() string {
	if t.AccountNumber == nil {
		return ""
	}
	return *t.AccountNumber
}

// WithMetadata returns a copy of t carrying relay metadata. Fields set by
// the parser are left untouched.
func (t Transaction) WithMetadata(originalSender, phone string, receivedAt time.Time) Transaction {
	out := t
	out.OriginalSender = originalSender
	out.PhoneNumber = phone
	if !receivedAt.IsZero() {
		ts := receivedAt
		out.ReceivedAt = &ts
	}
	return out
}

// ValidationResult is the outcome of a cheap format pre-check.
type ValidationResult struct {
	IsValid bool   `json:"isValid"`
	Bank    Bank   `json:"bank"`
	Error   string `json:"error,omitempty"`
}
