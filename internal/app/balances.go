package app

import (
	"sort"
	"sync"
	"time"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
	"github.com/insightdelivered/bank-sms-notifier/internal/store"
)

// Balance is the latest balance seen for one bank.
type Balance struct {
	Bank      models.Bank `json:"bank"`
	Balance   int64       `json:"balance"`
	Account   string      `json:"account,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// BalanceTracker remembers the most recent balance per bank.
type BalanceTracker struct {
	mu     sync.Mutex
	byBank map[models.Bank]Balance
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{byBank: make(map[models.Bank]Balance)}
}

// Seed loads balances persisted by earlier runs.
func (b *BalanceTracker) Seed(balances []store.BankBalance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bal := range balances {
		bank := models.Bank(bal.Bank)
		if cur, ok := b.byBank[bank]; ok && cur.UpdatedAt.After(bal.UpdatedAt) {
			continue
		}
		b.byBank[bank] = Balance{Bank: bank, Balance: bal.Balance, UpdatedAt: bal.UpdatedAt}
	}
}

// Observe records the balance carried by tx and returns the change from
// the previous balance. known is false for the first balance of a bank.
// Transactions older than the stored balance are ignored.
func (b *BalanceTracker) Observe(tx models.Transaction) (delta int64, known bool) {
	at := tx.ParsedAt
	if tx.ReceivedAt != nil {
		at = *tx.ReceivedAt
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prev, ok := b.byBank[tx.Bank]
	if ok && prev.UpdatedAt.After(at) {
		return 0, true
	}
	b.byBank[tx.Bank] = Balance{Bank: tx.Bank, Balance: tx.Balance, Account: tx.Account(), UpdatedAt: at}
	if !ok {
		return 0, false
	}
	return tx.Balance - prev.Balance, true
}

// Snapshot returns the balances ordered by bank.
func (b *BalanceTracker) Snapshot() []Balance {
	b.mu.Lock()
	out := make([]Balance, 0, len(b.byBank))
	for _, bal := range b.byBank {
		out = append(out, bal)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Bank < out[j].Bank })
	return out
}

// Total sums the balances of every bank.
func (b *BalanceTracker) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total int64
	for _, bal := range b.byBank {
		total += bal.Balance
	}
	return total
}
