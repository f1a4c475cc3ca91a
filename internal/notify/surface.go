package notify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

//go:generate mockgen -destination=mocks/mock_surface.go -package=mocks -source=surface.go Surface

// ErrSurfaceDestroyed is returned by a Surface for calls on a closed handle.
var ErrSurfaceDestroyed = errors.New("surface already destroyed")

// Handle identifies a surface owned by a Surface implementation.
type Handle string

// Surface draws popups. Implementations must tolerate calls against
// handles that are already destroyed.
type Surface interface {
	Create(geom Rect, p Payload) (Handle, error)
	UpdateGeometry(h Handle, geom Rect) error
	SendPayload(h Handle, p Payload) error
	Destroy(h Handle) error
	IsDestroyed(h Handle) bool
}

// Payload is the display content of one popup.
type Payload struct {
	SlotID      string                 `json:"slotId"`
	Bank        models.Bank            `json:"bank"`
	Title       string                 `json:"title"`
	Type        models.TransactionType `json:"transactionType"`
	Amount      string                 `json:"amount"`
	Balance     string                 `json:"balance"`
	Account     string                 `json:"account,omitempty"`
	Description string                 `json:"description,omitempty"`
	Time        string                 `json:"time,omitempty"`
	Newest      bool                   `json:"newest"`
	Compact     bool                   `json:"compact"`
}

var textPolicy = bluemonday.StrictPolicy()

// NewPayload renders tx for display. Free text is stripped of markup.
// Compact payloads leave out the account and description.
func NewPayload(slotID string, tx models.Transaction, newest, compact bool) Payload {
	p := Payload{
		SlotID:  slotID,
		Bank:    tx.Bank,
		Title:   textPolicy.Sanitize(tx.Sender),
		Type:    tx.Type,
		Amount:  SignedAmount(tx.Amount, tx.Type),
		Balance: FormatVND(tx.Balance),
		Newest:  newest,
		Compact: compact,
	}
	if p.Title == "" {
		p.Title = tx.Bank.DisplayName()
	}
	if tx.Timestamp != nil {
		p.Time = tx.Timestamp.Format("15:04 02/01/2006")
	}
	if !compact {
		p.Account = tx.Account()
		p.Description = textPolicy.Sanitize(tx.Description)
	}
	return p
}

// FormatVND renders n with thousands separators, e.g. "1,400,000 VND".
func FormatVND(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-" + b.String() + " VND"
	}
	return b.String() + " VND"
}

// SignedAmount prefixes the formatted amount with + for credits and - for debits.
func SignedAmount(amount int64, t models.TransactionType) string {
	switch t {
	case models.TypeCredit:
		return "+" + FormatVND(amount)
	case models.TypeDebit:
		return "-" + FormatVND(amount)
	default:
		return FormatVND(amount)
	}
}

// Summary is a one-line text rendering of the payload.
func (p Payload) Summary() string {
	s := fmt.Sprintf("%s %s | SD %s", p.Title, p.Amount, p.Balance)
	if p.Time != "" {
		s += " | " + p.Time
	}
	return s
}

// since reports how long a slot has been alive at now.
func since(created, now time.Time) time.Duration {
	if now.Before(created) {
		return 0
	}
	return now.Sub(created)
}
