package parser

import (
	"regexp"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

// VietinBank SMS layout:
//
//	11/08/2025 10:33|TK:103811795555|GD:-4,000,000VND|SDC:63,908,063VND|ND:...
var (
	vietinTime        = regexp.MustCompile(`(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2})`)
	vietinAccount     = regexp.MustCompile(`TK:(\d+)`)
	vietinAmount      = regexp.MustCompile(`GD:([\+\-]?)([\d,]+)VND`)
	vietinBalance     = regexp.MustCompile(`SDC:([\d,]+)VND`)
	vietinDescription = regexp.MustCompile(`ND:(.+)$`)
)

// An unsigned amount is a credit.
var vietinbankGrammar = &grammar{
	bank:        models.BankVietinBank,
	markers:     []string{"TK:", "GD:", "SDC:"},
	timePattern: vietinTime,
	timeLayout:  "02/01/2006 15:04",
	account:     vietinAccount,
	amount:      vietinAmount,
	signs: signTable{
		bySign: map[string]models.TransactionType{
			"-": models.TypeDebit,
			"+": models.TypeCredit,
		},
		fallback: models.TypeCredit,
	},
	balance:     singleBalance(vietinBalance),
	description: vietinDescription,
}
