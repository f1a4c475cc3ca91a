package parser

import (
	"time"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

// SampleMessages returns one real-format SMS per supported bank.
func SampleMessages() map[models.Bank]string {
	return map[models.Bank]string{
		models.BankVietinBank:  "11/08/2025 10:33|TK:103811795555|GD:-4,000,000VND|SDC:63,908,063VND|ND:CT DI:610K2580GPLHU0GZ TRINH MINH THOM chuyen tien; tai iPay",
		models.BankVietcombank: "SD TK 0811000010904 +1,400,000VND luc 11-08-2025 11:26:18. SD 29,796,653VND. Ref TKP#NP82501242920449VCB#5223IBT1jQNIAZK3.MCF8BG45FPZ5PNP 490235910-110825-11...",
	}
}

// SampleTransactions returns illustrative transactions for demos. Timestamps
// are one second apart starting at the current time.
func SampleTransactions() []models.Transaction {
	base := now()
	samples := []struct {
		bank        models.Bank
		account     string
		typ         models.TransactionType
		amount      int64
		balance     int64
		description string
	}{
		{models.BankVietinBank, "103811795555", models.TypeCredit, 1500000, 65408063, "Nhan tien tu NGUYEN VAN A Luong thang 8/2025"},
		{models.BankVietcombank, "0811000010904", models.TypeDebit, 800000, 28996653, "ATM WITHDRAW ATM001"},
		{models.BankVietinBank, "103811795555", models.TypeCredit, 2200000, 67608063, "Luong thang 8/2025"},
	}

	out := make([]models.Transaction, 0, len(samples))
	for i, s := range samples {
		ts := base.Add(time.Duration(i) * time.Second)
		acct := s.account
		out = append(out, models.Transaction{
			Bank:          s.bank,
			Sender:        s.bank.DisplayName(),
			Timestamp:     &ts,
			AccountNumber: &acct,
			Amount:        s.amount,
			Type:          s.typ,
			Balance:       s.balance,
			Description:   s.description,
			IsValid:       true,
			ParsedAt:      base,
		})
	}
	return out
}
