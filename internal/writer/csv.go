package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
)

// CSVWriter writes transactions to CSV format.
type CSVWriter struct {
	IncludeHeader bool
	// Source is written as a metadata row when IncludeHeader is set.
	Source string
}

// WriteToFile writes transactions to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, txs []models.Transaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	return w.Write(f, txs)
}

// Write writes transactions in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, txs []models.Transaction) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		if w.Source != "" {
			writer.Write([]string{"# Source", w.Source})
		}
		writer.Write([]string{"# Transactions", strconv.Itoa(len(txs))})
	}

	header := []string{"Time", "Bank", "Account", "Type", "Amount", "Balance", "Description"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, tx := range txs {
		row := []string{
			formatTime(tx.Timestamp),
			string(tx.Bank),
			tx.Account(),
			string(tx.Type),
			formatAmount(tx.Amount),
			strconv.FormatInt(tx.Balance, 10),
			tx.Description,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatAmount(amount int64) string {
	if amount == 0 {
		return ""
	}
	return strconv.FormatInt(amount, 10)
}

func formatTime(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.Format("2006-01-02 15:04:05")
}
