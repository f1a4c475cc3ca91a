// Package extractor turns exported SMS archives into raw message texts
// for backfilling the transaction history.
package extractor

import (
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// ExtractLines reads an archive and returns its text as one flat list of
// lines in reading order. Page breaks are not preserved so a message
// printed across two pages stays in one piece. PDFs are read with the
// structured library first and with the external pdftotext command when
// that yields nothing usable.
func ExtractLines(filePath string) ([]string, error) {
	if !strings.EqualFold(filepath.Ext(filePath), ".pdf") {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read archive %q: %w", filePath, err)
		}
		return strings.Split(string(data), "\n"), nil
	}

	lines, libErr := readPDFLines(filePath)
	if libErr == nil && isReadableText(lines) {
		return lines, nil
	}

	popplerLines, popplerErr := readPdftotextLines(filePath)
	if popplerErr == nil && isReadableText(popplerLines) {
		return popplerLines, nil
	}

	if libErr != nil {
		return nil, fmt.Errorf("PDF text extraction failed: %w", libErr)
	}
	return nil, fmt.Errorf("no readable SMS text could be extracted from %q", filePath)
}

// textQuality returns the ratio of plain ASCII characters to all
// characters, between 0 and 1. Bank SMS are sent without diacritics so
// anything else is usually decoding garbage.
func textQuality(lines []string) float64 {
	total := 0
	readable := 0
	for _, line := range lines {
		for _, r := range line {
			total++
			if r < unicode.MaxASCII && (unicode.IsPrint(r) || unicode.IsSpace(r)) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// smsMarkers appear in every supported bank message.
var smsMarkers = []string{"tk:", "gd:", "sdc:", "sd tk", "vnd", "ref"}

func containsSMSMarkers(lines []string) bool {
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, word := range smsMarkers {
			if strings.Contains(lower, word) {
				return true
			}
		}
	}
	return false
}

// isReadableText requires more than 20 characters, mostly ASCII, with at
// least one bank SMS marker.
func isReadableText(lines []string) bool {
	n := 0
	for _, l := range lines {
		n += len(strings.TrimSpace(l))
	}
	if n <= 20 {
		return false
	}
	if textQuality(lines) <= 0.6 {
		return false
	}
	return containsSMSMarkers(lines)
}

// readPdftotextLines runs pdftotext from poppler-utils over the whole
// document in one pass.
func readPdftotextLines(filePath string) ([]string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available: %w", err)
	}
	out, err := exec.Command("pdftotext", "-enc", "UTF-8", filePath, "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	// Form feeds mark page breaks; dropping them joins the pages.
	text := strings.ReplaceAll(string(out), "\f", "")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("pdftotext produced no output")
	}
	return strings.Split(text, "\n"), nil
}

// readPDFLines collects the text rows of every page. Each page is read by
// row first and rebuilt from positioned glyphs when that fails.
func readPDFLines(filePath string) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	f, r, openErr := pdf.Open(filePath)
	if openErr != nil {
		return nil, openErr
	}
	defer f.Close()

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows := pageRows(page)
		if !isReadableText(rows) {
			if byPos := pageRowsByPosition(page); len(byPos) > 0 {
				rows = byPos
			}
		}
		lines = append(lines, rows...)
	}
	return lines, nil
}

func pageRows(page pdf.Page) []string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil
	}
	var out []string
	for _, row := range rows {
		parts := make([]string, 0, len(row.Content))
		for _, word := range row.Content {
			parts = append(parts, word.S)
		}
		if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// pageRowsByPosition groups glyphs sharing a baseline into rows, top to
// bottom. PDF Y grows upwards.
func pageRowsByPosition(page pdf.Page) []string {
	type glyph struct {
		x float64
		s string
	}

	byY := make(map[int][]glyph)
	for _, t := range page.Content().Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		y := int(math.Round(t.Y))
		byY[y] = append(byY[y], glyph{x: t.X, s: t.S})
	}

	ys := make([]int, 0, len(byY))
	for y := range byY {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ys)))

	out := make([]string, 0, len(ys))
	for _, y := range ys {
		glyphs := byY[y]
		sort.Slice(glyphs, func(a, b int) bool { return glyphs[a].x < glyphs[b].x })
		var sb strings.Builder
		for _, g := range glyphs {
			sb.WriteString(g.s)
		}
		if line := strings.TrimSpace(sb.String()); line != "" {
			out = append(out, line)
		}
	}
	return out
}
