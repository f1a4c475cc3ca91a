package parser

import (
	"regexp"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

// Vietcombank SMS layout:
//
//	SD TK 0811000010904 +1,400,000VND luc 11-08-2025 11:26:18. SD 29,796,653VND. Ref ...
//
// A fee can add a second "SD ...VND"; the later one is the final balance.
var (
	vcbTime          = regexp.MustCompile(`luc (\d{2}-\d{2}-\d{4} \d{2}:\d{2}:\d{2})`)
	vcbAccount       = regexp.MustCompile(`TK (\d+)`)
	vcbAmount        = regexp.MustCompile(`([\+\-])([\d,]+)VND`)
	vcbBalance       = regexp.MustCompile(`SD ([\d,]+)VND`)
	vcbBalanceSingle = regexp.MustCompile(`\. SD ([\d,]+)VND`)
	vcbDescription   = regexp.MustCompile(`Ref (.+)$`)
)

var vietcombankGrammar = &grammar{
	bank:        models.BankVietcombank,
	markers:     []string{"SD TK", "luc", "Ref"},
	timePattern: vcbTime,
	timeLayout:  "02-01-2006 15:04:05",
	account:     vcbAccount,
	amount:      vcbAmount,
	signs: signTable{
		bySign:   map[string]models.TransactionType{"+": models.TypeCredit},
		fallback: models.TypeDebit,
	},
	balance:     vietcombankBalance,
	description: vcbDescription,
}

func vietcombankBalance(text string) int64 {
	matches := vcbBalance.FindAllStringSubmatch(text, -1)
	switch {
	case len(matches) >= 2:
		return parseNumber(matches[1][1])
	case len(matches) == 1:
		return parseNumber(extractMatch(text, vcbBalanceSingle, 1))
	default:
		return 0
	}
}
