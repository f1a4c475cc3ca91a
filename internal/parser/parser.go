package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

// MinTextLength is the shortest text Validate will accept.
const MinTextLength = 10

// Location is the time zone bank SMS timestamps are written in.
var Location = time.FixedZone("ICT", 7*60*60)

var now = time.Now

// grammars is consulted in order by DetectBank.
var grammars = []*grammar{vietinbankGrammar, vietcombankGrammar}

var grammarByBank = func() map[models.Bank]*grammar {
	m := make(map[models.Bank]*grammar, len(grammars))
	for _, g := range grammars {
		m[g.bank] = g
	}
	return m
}()

// DetectBank returns the first bank whose markers all occur in text.
func DetectBank(text string) models.Bank {
	for _, g := range grammars {
		if containsAll(text, g.markers) {
			return g.bank
		}
	}
	return models.BankUnknown
}

// Parse turns an SMS body into a Transaction. It never panics: every
// failure is reported through IsValid and Error.
func Parse(text, sender string) (tx models.Transaction) {
	defer func() {
		if r := recover(); r != nil {
			tx = invalidResult(text, sender, fmt.Sprintf("parse failure: %v", r))
		}
	}()

	if strings.TrimSpace(text) == "" {
		return invalidResult(text, sender, "Invalid input")
	}

	g, ok := grammarByBank[DetectBank(text)]
	if !ok {
		return invalidResult(text, sender, "Unknown bank format")
	}

	tx = g.parse(text)
	tx.ParsedAt = now()
	return tx
}

// Validate is a cheap pre-flight check that only looks at length and markers.
func Validate(text string) models.ValidationResult {
	if strings.TrimSpace(text) == "" {
		return models.ValidationResult{Bank: models.BankUnknown, Error: "SMS text is required"}
	}
	if len(strings.TrimSpace(text)) < MinTextLength {
		return models.ValidationResult{Bank: models.BankUnknown, Error: "SMS text is too short"}
	}
	bank := DetectBank(text)
	if bank == models.BankUnknown {
		return models.ValidationResult{Bank: bank, Error: "Unknown bank format"}
	}
	return models.ValidationResult{IsValid: true, Bank: bank}
}

// isComplete is the validity gate shared by every bank.
func isComplete(tx models.Transaction) bool {
	return tx.Timestamp != nil && tx.AccountNumber != nil && tx.Amount > 0 && tx.Balance >= 0
}

func invalidResult(text, sender, reason string) models.Transaction {
	if sender == "" {
		sender = models.BankUnknown.DisplayName()
	}
	return models.Transaction{
		Bank:        models.BankUnknown,
		Sender:      sender,
		RawContent:  text,
		Type:        models.TypeUnknown,
		Description: text,
		Error:       reason,
		ParsedAt:    now(),
	}
}

func containsAll(text string, markers []string) bool {
	for _, m := range markers {
		if !strings.Contains(text, m) {
			return false
		}
	}
	return true
}
