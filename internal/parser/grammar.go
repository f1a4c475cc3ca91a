package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

// signTable maps the sign token captured next to an amount to a
// transaction type. Banks disagree on the convention so each has its own.
type signTable struct {
	bySign   map[string]models.TransactionType
	fallback models.TransactionType
}

func (s signTable) typeOf(sign string) models.TransactionType {
	if t, ok := s.bySign[sign]; ok {
		return t
	}
	return s.fallback
}

// grammar describes how one bank lays out its SMS.
type grammar struct {
	bank    models.Bank
	markers []string

	timePattern *regexp.Regexp
	timeLayout  string
	account     *regexp.Regexp
	// amount captures the sign in group 1 and the digits in group 2.
	amount      *regexp.Regexp
	signs       signTable
	balance     func(text string) int64
	description *regexp.Regexp
}

func (g *grammar) parse(text string) models.Transaction {
	tx := models.Transaction{
		Bank:       g.bank,
		Sender:     g.bank.DisplayName(),
		RawContent: text,
		Type:       models.TypeUnknown,
	}

	tx.Timestamp = g.parseTime(text)
	if acct := extractMatch(text, g.account, 1); acct != "" {
		tx.AccountNumber = &acct
	}
	if m := g.amount.FindStringSubmatch(text); m != nil {
		tx.Amount = parseNumber(m[2])
		tx.Type = g.signs.typeOf(m[1])
	}
	tx.Balance = g.balance(text)
	tx.Description = strings.TrimSpace(extractMatch(text, g.description, 1))

	tx.IsValid = isComplete(tx)
	if !tx.IsValid {
		tx.Error = "Missing required transaction fields"
	}
	return tx
}

func (g *grammar) parseTime(text string) *time.Time {
	raw := extractMatch(text, g.timePattern, 1)
	if raw == "" {
		return nil
	}
	ts, err := time.ParseInLocation(g.timeLayout, strings.Join(strings.Fields(raw), " "), Location)
	if err != nil {
		return nil
	}
	return &ts
}

// singleBalance builds a balance extractor from one pattern.
func singleBalance(re *regexp.Regexp) func(string) int64 {
	return func(text string) int64 {
		return parseNumber(extractMatch(text, re, 1))
	}
}
